package testkit

import (
	"context"
	"math/rand"
)

// RNGAdapter implements ports.RNGPort with a plain seeded math/rand source,
// grounded on the teacher's testkit RNG stub — calibration_service_test.go
// wires it wherever a deterministic EM-algorithm run is needed.
type RNGAdapter struct{}

// SeededStream creates a deterministic random number generator for a named operation.
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}
