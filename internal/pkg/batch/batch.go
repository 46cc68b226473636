// Package batch dispatches independent per-item work in fixed-size chunks
// with bounded concurrency inside each chunk.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Options controls chunking. Zero values fall back to the defaults.
type Options struct {
	ChunkSize   int
	Concurrency int
}

// Defaults used when Options fields are unset.
const (
	DefaultChunkSize   = 50
	DefaultConcurrency = 8
)

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Each runs fn for every item. Chunks run one after another; items within a
// chunk run concurrently up to opts.Concurrency. Per-item errors are
// collected into the returned slice (indexed like items) and never stop the
// run. A cancelled context stops dispatch of further chunks; the items that
// never ran carry ctx.Err().
func Each[T any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) error) []error {
	opts = opts.normalized()
	errs := make([]error, len(items))

	offset := 0
	for _, chunk := range Chunks(items, opts.ChunkSize) {
		if err := ctx.Err(); err != nil {
			for i := offset; i < len(items); i++ {
				errs[i] = err
			}
			return errs
		}

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i, item := range chunk {
			item := item
			idx := offset + i
			g.Go(func() error {
				errs[idx] = fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
		offset += len(chunk)
	}
	return errs
}

// Count tallies nil and non-nil entries of an Each result.
func Count(errs []error) (ok, failed int) {
	for _, err := range errs {
		if err != nil {
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}
