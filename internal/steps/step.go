// Package steps holds the ordered, individually idempotent mutations that
// converge a host on its provisioned state.
package steps

import (
	"context"
	"fmt"

	"github.com/eniac111/hostprep/internal/remote"
)

// Step is one idempotent mutation in a provisioning workflow. Run reports
// whether it changed the host; an already-satisfied precondition is a no-op.
type Step interface {
	Name() string
	Run(ctx context.Context, r remote.Runner) (changed bool, err error)
}

// Result records the outcome of one step on one host.
type Result struct {
	Step    string
	Host    string
	Changed bool
}

// StepError marks a mutation step that failed. The host's run stops at the
// failing step; nothing already applied is rolled back, re-running the
// workflow converges instead.
type StepError struct {
	Step  string
	Host  string
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed on %s: %v", e.Step, e.Host, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }
