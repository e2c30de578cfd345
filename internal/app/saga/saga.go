// Package saga runs a sequence of steps and compensates the completed ones, in
// reverse, when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
)

type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context, cause error) error
}

// Failure describes a saga that stopped at a step.
type Failure struct {
	Step string
	Err  error
	// Compensation joins the errors of compensations that also failed.
	Compensation error
}

func (f *Failure) Error() string {
	if f.Compensation != nil {
		return fmt.Sprintf("saga: step %q failed: %v (compensation: %v)", f.Step, f.Err, f.Compensation)
	}
	return fmt.Sprintf("saga: step %q failed: %v", f.Step, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Run executes steps in order. Compensations get a fresh-enough context from
// the caller; a cancelled ctx is passed through unchanged.
func Run(ctx context.Context, steps ...Step) error {
	done := make([]Step, 0, len(steps))
	for _, step := range steps {
		if err := step.Execute(ctx); err != nil {
			var compErrs []error
			for i := len(done) - 1; i >= 0; i-- {
				if done[i].Compensate == nil {
					continue
				}
				if cerr := done[i].Compensate(ctx, err); cerr != nil {
					compErrs = append(compErrs, fmt.Errorf("%s: %w", done[i].Name, cerr))
				}
			}
			return &Failure{Step: step.Name, Err: err, Compensation: errors.Join(compErrs...)}
		}
		done = append(done, step)
	}
	return nil
}
