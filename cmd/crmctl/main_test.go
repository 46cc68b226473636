package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"score", "lead"},
		{"score", "many"},
		{"score", "all"},
		{"score", "category"},
		{"score", "config", "set"},
		{"score", "profile"},
		{"segments", "refresh"},
		{"segments", "members"},
		{"segments", "check"},
		{"segment", "create"},
		{"triggers", "fire"},
		{"migrate"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestSegmentsOperators(t *testing.T) {
	out, err := run(t, "segments", "operators")
	require.NoError(t, err)

	var ops []string
	require.NoError(t, json.Unmarshal([]byte(out), &ops))
	assert.Contains(t, ops, "daysAgo")
	assert.Contains(t, ops, "greater_than")
	assert.Contains(t, ops, "greaterThan")
}

func TestArgumentValidation(t *testing.T) {
	_, err := run(t, "score", "lead")
	assert.Error(t, err)

	_, err = run(t, "segments", "refresh", "org-1", "extra")
	assert.Error(t, err)

	_, err = run(t, "segments", "check", "org-1", "seg-1")
	assert.Error(t, err)
}

func TestRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := run(t, "score", "all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
}
