// Package backup defines the pre-write snapshot contract. Every
// mutating persistence write is preceded by a synchronous snapshot of
// the current durable state; if the snapshot fails, the write is
// aborted. Artifacts are immutable, append-only, never pruned here.
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/Mossos12/AlemAuto/internal/model"
)

// Snapshotter writes one immutable, timestamp-keyed copy of the full
// pre-write record set and returns a reference to the artifact.
type Snapshotter interface {
	Snapshot(ctx context.Context, vehicles []model.Vehicle) (ref string, err error)
}

// Key formats t as the artifact timestamp key, e.g. 20240301_154500.
func Key(t time.Time) string {
	return t.Format("20060102_150405")
}

// UniqueKey returns the first key derived from t that taken rejects.
// Two writes inside the same second get _2, _3, ... suffixes rather
// than colliding (an existing artifact is never overwritten).
func UniqueKey(t time.Time, taken func(string) bool) string {
	key := Key(t)
	if !taken(key) {
		return key
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", key, i)
		if !taken(candidate) {
			return candidate
		}
	}
}
