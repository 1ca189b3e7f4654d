package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mossos12/AlemAuto/internal/cache"
	"github.com/Mossos12/AlemAuto/internal/dto"
	"github.com/Mossos12/AlemAuto/internal/model"
	"github.com/Mossos12/AlemAuto/internal/pricing"
	"github.com/Mossos12/AlemAuto/internal/valuation"
)

// ─── Stubs ───────────────────────────────────────────────────────────────────

// memAdapter is an in-memory whole-set-replace backend. It records the
// order of snapshot and write calls so tests can assert that every write
// is preceded by a snapshot of the state it replaces.
type memAdapter struct {
	mu        sync.Mutex
	vehicles  []model.Vehicle
	calls     []string // "snapshot" / "write"
	snapErr   error
	writeErr  error
	snapshots [][]model.Vehicle
}

func (m *memAdapter) LoadAll(ctx context.Context) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Vehicle, len(m.vehicles))
	copy(out, m.vehicles)
	return out, nil
}

func (m *memAdapter) WriteAll(ctx context.Context, vehicles []model.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.calls = append(m.calls, "write")
	m.vehicles = make([]model.Vehicle, len(vehicles))
	copy(m.vehicles, vehicles)
	return nil
}

func (m *memAdapter) Snapshot(ctx context.Context, vehicles []model.Vehicle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapErr != nil {
		return "", m.snapErr
	}
	m.calls = append(m.calls, "snapshot")
	snap := make([]model.Vehicle, len(vehicles))
	copy(snap, vehicles)
	m.snapshots = append(m.snapshots, snap)
	return "mem", nil
}

type stubOracle struct {
	value decimal.Decimal
	err   error
	calls int
}

func (o *stubOracle) Lookup(ctx context.Context, req valuation.Request) (decimal.Decimal, error) {
	o.calls++
	if o.err != nil {
		return decimal.Decimal{}, o.err
	}
	return o.value, nil
}

func newService(adapter *memAdapter, oracle valuation.Oracle) InventoryService {
	return NewInventoryService(adapter, adapter, cache.New(adapter, 0), oracle, nil, 10.0, time.Second)
}

func createReq(vinNo string) dto.CreateVehicleRequest {
	no := false
	return dto.CreateVehicleRequest{
		Make:              "Honda",
		Model:             "Civic",
		ModelYear:         2019,
		VIN:               vinNo,
		Mileage:           42000,
		VehicleCost:       decimal.NewFromInt(5000),
		PartsCost:         decimal.NewFromInt(700),
		LabourCost:        decimal.NewFromInt(300),
		LookupMarketValue: &no,
	}
}

func strptr(s string) *string { return &s }

// ─── Create ──────────────────────────────────────────────────────────────────

func TestCreate_DerivesPricing(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)

	got, err := svc.Create(context.Background(), createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	assert.True(t, got.Cost.Equal(decimal.NewFromInt(6000)), "cost = %s", got.Cost)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(6600)), "price = %s", got.Price)
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(7260)), "market value = %s", got.MarketValue)
	assert.Equal(t, string(model.StatusAvailable), got.Status)
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, got.AddedAt)
}

func TestCreate_MissingFields(t *testing.T) {
	svc := newService(&memAdapter{}, nil)

	req := createReq("1HGBH41JXMN109186")
	req.Make = ""
	req.Model = "  "
	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "make")
	assert.Contains(t, err.Error(), "model")
}

func TestCreate_InvalidVin(t *testing.T) {
	svc := newService(&memAdapter{}, nil)

	req := createReq("SHORT")
	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidVin)
}

func TestCreate_DuplicateVin(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	assert.ErrorIs(t, err, ErrDuplicateVin)
}

func TestCreate_DuplicateVinReportedBeforeBadNumerics(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	// A request that is both a duplicate and malformed reports the
	// duplicate: uniqueness is checked before the numerics.
	req := createReq("1HGBH41JXMN109186")
	req.VehicleCost = decimal.NewFromInt(-5)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateVin)

	req = createReq("1HGBH41JXMN109186")
	req.ModelYear = 1850
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateVin)
}

func TestCreate_SoldNotAdmissible(t *testing.T) {
	svc := newService(&memAdapter{}, nil)

	req := createReq("1HGBH41JXMN109186")
	req.Status = string(model.StatusSold)
	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreate_RejectsBadModelYear(t *testing.T) {
	svc := newService(&memAdapter{}, nil)

	req := createReq("1HGBH41JXMN109186")
	req.ModelYear = 1850
	_, err := svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, pricing.ErrInvalidNumeric)
}

func TestCreate_ConcurrentSameVin(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), createReq("1HGBH41JXMN109186"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateVin)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent create must win")

	stored, err := adapter.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCreate_OverrideAndWarning(t *testing.T) {
	svc := newService(&memAdapter{}, nil)
	ctx := context.Background()

	req := createReq("1HGBH41JXMN109186")
	req.MarketValue = strptr("9000")
	got, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(9000)))
	assert.Empty(t, got.Warnings)

	req2 := createReq("2HGBH41JXMN109187")
	req2.MarketValue = strptr("not-a-number")
	got, err = svc.Create(ctx, req2)
	require.NoError(t, err)
	// Garbage override degrades to the computed estimate with a warning
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(7260)))
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "market_value")
}

func TestCreate_OracleProvidesMarketValue(t *testing.T) {
	oracle := &stubOracle{value: decimal.NewFromInt(8100)}
	svc := newService(&memAdapter{}, oracle)

	req := createReq("1HGBH41JXMN109186")
	req.LookupMarketValue = nil // nil means yes
	got, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, oracle.calls)
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(8100)))
}

func TestCreate_OracleFailureNotFatal(t *testing.T) {
	oracle := &stubOracle{err: valuation.ErrUnavailable}
	svc := newService(&memAdapter{}, oracle)

	req := createReq("1HGBH41JXMN109186")
	req.LookupMarketValue = nil
	got, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(7260)))
	// The degradation is surfaced to the caller, not just logged
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "lookup unavailable")
}

func TestCreate_NoOracleConfiguredNoWarning(t *testing.T) {
	svc := newService(&memAdapter{}, nil)

	req := createReq("1HGBH41JXMN109186")
	req.LookupMarketValue = nil
	got, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, got.Warnings)
}

func TestCreate_ManualOverrideSkipsOracle(t *testing.T) {
	oracle := &stubOracle{value: decimal.NewFromInt(8100)}
	svc := newService(&memAdapter{}, oracle)

	req := createReq("1HGBH41JXMN109186")
	req.LookupMarketValue = nil
	req.MarketValue = strptr("9000")
	got, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, oracle.calls)
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(9000)))
}

// ─── Snapshot discipline ─────────────────────────────────────────────────────

func TestPersist_SnapshotPrecedesEveryWrite(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)
	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", dto.MarkSoldRequest{SoldPrice: decimal.NewFromInt(7000)})
	require.NoError(t, err)

	require.Equal(t, []string{"snapshot", "write", "snapshot", "write"}, adapter.calls)
	// First snapshot captures the empty pre-create state, second the
	// one-record pre-sale state.
	assert.Len(t, adapter.snapshots[0], 0)
	assert.Len(t, adapter.snapshots[1], 1)
	assert.Nil(t, adapter.snapshots[1][0].SoldPrice)
}

func TestPersist_FailedSnapshotAbortsWrite(t *testing.T) {
	adapter := &memAdapter{snapErr: errors.New("backup disk full")}
	svc := newService(adapter, nil)

	_, err := svc.Create(context.Background(), createReq("1HGBH41JXMN109186"))
	require.Error(t, err)

	stored, loadErr := adapter.LoadAll(context.Background())
	require.NoError(t, loadErr)
	assert.Empty(t, stored, "a write must never land without its snapshot")
	assert.NotContains(t, adapter.calls, "write")
}

func TestCreate_InvalidatesReadCache(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	list, err := svc.List(ctx, dto.VehicleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)

	_, err = svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	list, err = svc.List(ctx, dto.VehicleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

// ─── Update ──────────────────────────────────────────────────────────────────

func TestUpdate_RecomputesDerivedFigures(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	newParts := decimal.NewFromInt(1700)
	no := false
	got, err := svc.Update(ctx, "1HGBH41JXMN109186", dto.UpdateVehicleRequest{
		PartsCost:         &newParts,
		LookupMarketValue: &no,
	})
	require.NoError(t, err)

	assert.True(t, got.Cost.Equal(decimal.NewFromInt(7000)), "cost = %s", got.Cost)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(7700)), "price = %s", got.Price)
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(8470)), "market value = %s", got.MarketValue)
	// Untouched fields survive the patch
	assert.Equal(t, "Civic", got.Model)
	assert.Equal(t, 2019, got.ModelYear)
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newService(&memAdapter{}, nil)

	_, err := svc.Update(context.Background(), "1HGBH41JXMN109186", dto.UpdateVehicleRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_StatusPatchOnSoldRejected(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)
	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", dto.MarkSoldRequest{SoldPrice: decimal.NewFromInt(7000)})
	require.NoError(t, err)

	status := string(model.StatusAvailable)
	_, err = svc.Update(ctx, "1HGBH41JXMN109186", dto.UpdateVehicleRequest{Status: &status})
	assert.ErrorIs(t, err, ErrAlreadySold)
}

func TestUpdate_StatusPatchAfterConcurrentSaleRejected(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	// Warm the read cache with the unsold record.
	_, err = svc.Get(ctx, "1HGBH41JXMN109186")
	require.NoError(t, err)

	// The record is sold out of band: the durable state moves on while
	// the cache still holds the unsold view.
	adapter.mu.Lock()
	soldPrice := decimal.NewFromInt(7000)
	adapter.vehicles[0].Status = model.StatusSold
	adapter.vehicles[0].SoldPrice = &soldPrice
	adapter.mu.Unlock()

	status := string(model.StatusHold)
	_, err = svc.Update(ctx, "1HGBH41JXMN109186", dto.UpdateVehicleRequest{Status: &status})
	assert.ErrorIs(t, err, ErrAlreadySold)
}

func TestUpdate_CannotBlankMake(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	blank := ""
	_, err = svc.Update(ctx, "1HGBH41JXMN109186", dto.UpdateVehicleRequest{Make: &blank})
	assert.ErrorIs(t, err, ErrMissingField)
}

// ─── MarkSold ────────────────────────────────────────────────────────────────

func TestMarkSold_ComputesProfit(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	got, err := svc.MarkSold(ctx, "1HGBH41JXMN109186", dto.MarkSoldRequest{
		SoldPrice: decimal.NewFromInt(7000),
		SoldDate:  "2026-08-15",
		SaleNotes: "cash deal",
	})
	require.NoError(t, err)

	assert.Equal(t, string(model.StatusSold), got.Status)
	require.NotNil(t, got.Profit)
	assert.True(t, got.Profit.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, got.ProfitPct)
	assert.True(t, got.ProfitPct.Equal(decimal.NewFromFloat(16.67)))
	require.NotNil(t, got.SoldDate)
	assert.Equal(t, "2026-08-15", *got.SoldDate)
	assert.Equal(t, "cash deal", got.SaleNotes)
}

func TestMarkSold_Twice(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	req := dto.MarkSoldRequest{SoldPrice: decimal.NewFromInt(7000)}
	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", req)
	require.NoError(t, err)
	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", req)
	assert.ErrorIs(t, err, ErrAlreadySold)
}

func TestMarkSold_RejectsNegativePriceAndBadDate(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", dto.MarkSoldRequest{SoldPrice: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", dto.MarkSoldRequest{
		SoldPrice: decimal.NewFromInt(7000),
		SoldDate:  "15/08/2026",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// ─── Reads ───────────────────────────────────────────────────────────────────

func TestList_Filters(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)
	ford := createReq("1FTBH41JXMN109187")
	ford.Make, ford.Model = "Ford", "F-150"
	_, err = svc.Create(ctx, ford)
	require.NoError(t, err)

	list, err := svc.List(ctx, dto.VehicleFilter{Make: "honda"})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Civic", list.Data[0].Model)

	list, err = svc.List(ctx, dto.VehicleFilter{Status: string(model.StatusSold)})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}

func TestGet(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, "1HGBH41JXMN109186")
	require.NoError(t, err)
	assert.Equal(t, "Civic", got.Model)

	_, err = svc.Get(ctx, "9HGBH41JXMN109199")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoldStats(t *testing.T) {
	adapter := &memAdapter{}
	svc := newService(adapter, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("1HGBH41JXMN109186"))
	require.NoError(t, err)
	second := createReq("2HGBH41JXMN109187")
	markup := decimal.NewFromInt(20)
	second.MarkupPct = &markup
	_, err = svc.Create(ctx, second)
	require.NoError(t, err)
	third := createReq("3HGBH41JXMN109188")
	_, err = svc.Create(ctx, third)
	require.NoError(t, err)

	_, err = svc.MarkSold(ctx, "1HGBH41JXMN109186", dto.MarkSoldRequest{SoldPrice: decimal.NewFromInt(7000)})
	require.NoError(t, err)
	_, err = svc.MarkSold(ctx, "2HGBH41JXMN109187", dto.MarkSoldRequest{SoldPrice: decimal.NewFromInt(6500)})
	require.NoError(t, err)

	stats, err := svc.SoldStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalSold)
	// 1000 + 500 profit across the two sales
	assert.True(t, stats.TotalProfit.Equal(decimal.NewFromInt(1500)), "total profit = %s", stats.TotalProfit)
	// (10 + 20) / 2
	assert.True(t, stats.AverageMarkupPct.Equal(decimal.NewFromInt(15)), "avg markup = %s", stats.AverageMarkupPct)
}
