// Package storage abstracts the physical persistence medium behind a
// small port. The service layer depends on these interfaces only; the
// concrete medium (flat file, relational, document store) is chosen at
// construction time in the composition root.
package storage

import (
	"context"
	"fmt"

	"github.com/Mossos12/AlemAuto/internal/model"
)

// Adapter is the minimum contract every backend satisfies: read the
// full durable set, replace the full durable set. Whole-set replace is
// all the legacy flat file can do.
type Adapter interface {
	LoadAll(ctx context.Context) ([]model.Vehicle, error)
	WriteAll(ctx context.Context, vehicles []model.Vehicle) error
}

// Upserter is an optional capability for backends that can update a
// single record keyed by VIN (equality match, limit 1, update or
// insert). The service prefers it for single-record mutations.
type Upserter interface {
	UpsertOne(ctx context.Context, v model.Vehicle) error
}

// PersistenceError marks a failure of the durable medium (I/O error,
// connectivity, write failure). Operations that hit one leave in-memory
// state unchanged and are safe to retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
