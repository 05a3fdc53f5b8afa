package workflow

import "context"

// RunInfo identifies the run an Execute call belongs to. Observers read it
// from the context to route their notifications and handlers use UserID to
// load the connections of the run owner.
type RunInfo struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
	UserID     string `json:"-"`
}

type runInfoKey struct{}

// WithRunInfo returns a context carrying info.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the run info stored in ctx, if any.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
