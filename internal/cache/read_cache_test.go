package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mossos12/AlemAuto/internal/model"
)

type stubAdapter struct {
	vehicles []model.Vehicle
	loads    int
	err      error
}

func (s *stubAdapter) LoadAll(ctx context.Context) ([]model.Vehicle, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Vehicle, len(s.vehicles))
	copy(out, s.vehicles)
	return out, nil
}

func (s *stubAdapter) WriteAll(ctx context.Context, vehicles []model.Vehicle) error {
	s.vehicles = vehicles
	return nil
}

func TestGet_ServesCachedUntilTTL(t *testing.T) {
	adapter := &stubAdapter{vehicles: []model.Vehicle{{VIN: "1HGBH41JXMN109186"}}}
	c := New(adapter, 5*time.Minute)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, adapter.loads)

	// Within TTL: no reload
	clock = clock.Add(4 * time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.loads)

	// Past TTL: reload
	clock = clock.Add(2 * time.Minute)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.loads)
}

func TestGet_ZeroTTLNeverExpires(t *testing.T) {
	adapter := &stubAdapter{}
	c := New(adapter, 0)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	clock = clock.Add(24 * time.Hour)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.loads)
}

func TestInvalidate_ForcesReload(t *testing.T) {
	adapter := &stubAdapter{}
	c := New(adapter, time.Hour)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.loads)

	c.Invalidate()

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.loads)
}

func TestGet_ReturnsCopy(t *testing.T) {
	adapter := &stubAdapter{vehicles: []model.Vehicle{{VIN: "1HGBH41JXMN109186", Make: "Honda"}}}
	c := New(adapter, time.Hour)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	got[0].Make = "mutated"

	again, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Honda", again[0].Make)
	assert.Equal(t, 1, adapter.loads, "mutation must not force a reload")
}

func TestGet_LoadErrorNotCached(t *testing.T) {
	adapter := &stubAdapter{err: errors.New("disk gone")}
	c := New(adapter, time.Hour)

	_, err := c.Get(context.Background())
	require.Error(t, err)

	adapter.err = nil
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.loads)
}
