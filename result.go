package chromegcm

import "slices"

// Result partitions the channel IDs of one Send call by outcome.
type Result struct {
	success []string
	failed  []string
}

func newResult(success, failed []string) *Result {
	if success == nil {
		success = []string{}
	}
	if failed == nil {
		failed = []string{}
	}
	return &Result{success: success, failed: failed}
}

// Success returns the channel IDs the push endpoint accepted, in send order.
func (r *Result) Success() []string { return slices.Clone(r.success) }

// Failed returns the channel IDs the push endpoint refused, in send order.
func (r *Result) Failed() []string { return slices.Clone(r.failed) }

// Total returns the number of channel IDs that were attempted.
func (r *Result) Total() int { return len(r.success) + len(r.failed) }
