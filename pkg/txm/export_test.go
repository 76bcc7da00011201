package txm

import "context"

// Sweep runs a single sweep and waits for every record it dispatched.
func (t *Txm) Sweep(ctx context.Context) {
	t.dispatch(ctx).Wait()
}
