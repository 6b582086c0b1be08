package reconcile

import (
	"github.com/evanofslack/dh-dyn-update/internal/provider"
)

type Results struct {
	Added    []provider.Record
	Removed  []provider.Record
	Skipped  []provider.Record
	Failures []OperationResult
}

type OperationResult struct {
	Record provider.Record
	Op     string
	Error  string
}

// Changed reports whether any record was added or removed.
func (r Results) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}
