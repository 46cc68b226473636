// Package scoring implements the lead scoring service.
//
// It loads a lead and its trailing activity window, resolves the weight set
// that applies (user profile, then organization override, then defaults),
// computes the 0-100 score with internal/scoring and writes it back to the
// lead. Bulk runs fan out in fixed-size chunks and report {updated, errors}
// counts; one lead's failure never aborts a batch.
//
// The service depends only on the Repository interfaces in repository.go.
package scoring
