// Package steps runs ordered lists of blocking actions one at a time,
// stopping at the first failure.
package steps

import "context"

// Step is one unit of a sequential action list.
type Step func(ctx context.Context) error

// Fire adapts a fire-and-continue action that cannot fail.
func Fire(fn func()) Step {
	return func(context.Context) error {
		fn()
		return nil
	}
}

// Run executes steps in order. The first error is returned and no later
// step runs. Nil steps are skipped. A cancelled context stops the list
// before the next step starts.
func Run(ctx context.Context, list ...Step) error {
	for _, step := range list {
		if step == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Sequence packs a list into a single Step so lists can nest.
func Sequence(list ...Step) Step {
	return func(ctx context.Context) error {
		return Run(ctx, list...)
	}
}
