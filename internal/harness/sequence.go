package harness

import (
	"context"
	"fmt"

	"github.com/roach88/labshot/internal/failure"
)

// Action is one user-equivalent operation applied to a session.
type Action func(ctx context.Context) error

// RunSequentially applies actions in order. After action i succeeds,
// onStep(ctx, i) runs (when non-nil) before action i+1 starts. The first
// error from an action or callback stops the sequence and is returned
// with the step index attached.
func RunSequentially(ctx context.Context, actions []Action, onStep func(ctx context.Context, i int) error) error {
	for i, act := range actions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("step %d: %w", i, failure.FromContext("sequence", "", err))
		}
		if err := act(ctx); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if onStep != nil {
			if err := onStep(ctx, i); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}
