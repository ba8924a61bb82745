package trial

import (
	"context"
	"fmt"
)

// Verifier reports post-load row counts. It never writes.
type Verifier struct {
	counter Counter
}

func NewVerifier(c Counter) *Verifier {
	return &Verifier{counter: c}
}

// Verify returns the current row count of every relation.
// A failure here does not affect an already committed load.
func (v *Verifier) Verify(ctx context.Context) (Counts, error) {
	counts, err := v.counter.Counts(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("verify counts: %w", err)
	}
	return counts, nil
}
