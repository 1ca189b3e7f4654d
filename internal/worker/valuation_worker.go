package worker

// valuation_worker.go
// Processes cache-warm jobs from QueueValuation: one oracle lookup per
// job, whose successful result lands in the redis valuation cache. A
// failed lookup is parked in the DLQ; the record itself is unaffected.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Mossos12/AlemAuto/internal/valuation"
)

// ValuationWorker consumes valuation_warm jobs.
type ValuationWorker struct {
	oracle  valuation.Oracle
	timeout time.Duration
}

func NewValuationWorker(oracle valuation.Oracle, timeout time.Duration) *ValuationWorker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ValuationWorker{oracle: oracle, timeout: timeout}
}

// Process performs the lookup. The oracle's client caches successful
// quotes, so completing the call is all the warming there is to do.
func (w *ValuationWorker) Process(ctx context.Context, rdb *redis.Client, queue string, raw json.RawMessage) {
	var payload ValuationJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("valuation_worker: invalid payload")
		return
	}
	if payload.VIN == "" || w.oracle == nil {
		return
	}

	lctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	_, err := w.oracle.Lookup(lctx, valuation.Request{
		VIN: payload.VIN, Make: payload.Make, Model: payload.Model,
		Year: payload.Year, Mileage: payload.Mileage,
	})
	if err != nil {
		SendToDLQ(ctx, rdb, queue, "valuation_warm", raw, err.Error(), 1)
		return
	}
	log.Debug().Str("vin", payload.VIN).Msg("valuation_worker: quote cached")
}
