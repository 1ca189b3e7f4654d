package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Mossos12/AlemAuto/internal/backup"
	"github.com/Mossos12/AlemAuto/internal/cache"
	"github.com/Mossos12/AlemAuto/internal/dto"
	"github.com/Mossos12/AlemAuto/internal/model"
	"github.com/Mossos12/AlemAuto/internal/pricing"
	"github.com/Mossos12/AlemAuto/internal/storage"
	"github.com/Mossos12/AlemAuto/internal/valuation"
	"github.com/Mossos12/AlemAuto/internal/vin"
	"github.com/Mossos12/AlemAuto/internal/worker"
)

const soldDateLayout = "2006-01-02"

// InventoryService defines the business logic contract for the vehicle
// record store.
type InventoryService interface {
	List(ctx context.Context, filter dto.VehicleFilter) (*dto.VehicleListResponse, error)
	Get(ctx context.Context, vinNo string) (*dto.VehicleResponse, error)
	Create(ctx context.Context, req dto.CreateVehicleRequest) (*dto.VehicleResponse, error)
	Update(ctx context.Context, vinNo string, req dto.UpdateVehicleRequest) (*dto.VehicleResponse, error)
	MarkSold(ctx context.Context, vinNo string, req dto.MarkSoldRequest) (*dto.VehicleResponse, error)
	SoldStats(ctx context.Context) (*dto.SoldStatsResponse, error)
}

type inventoryService struct {
	adapter    storage.Adapter
	upserter   storage.Upserter // nil when the backend only does whole-set replace
	snaps      backup.Snapshotter
	cache      *cache.ReadCache
	oracle     valuation.Oracle   // nil disables lookups
	dispatcher *worker.Dispatcher // nil disables async cache warming

	defaultMarkup decimal.Decimal
	lookupTimeout time.Duration

	// mu serializes all mutations: one writer at a time per store
	// instance, so no duplicate-VIN race and no lost update.
	mu  sync.Mutex
	now func() time.Time
}

func NewInventoryService(
	adapter storage.Adapter,
	snaps backup.Snapshotter,
	readCache *cache.ReadCache,
	oracle valuation.Oracle,
	dispatcher *worker.Dispatcher,
	defaultMarkupPct float64,
	lookupTimeout time.Duration,
) InventoryService {
	upserter, _ := adapter.(storage.Upserter)
	return &inventoryService{
		adapter:       adapter,
		upserter:      upserter,
		snaps:         snaps,
		cache:         readCache,
		oracle:        oracle,
		dispatcher:    dispatcher,
		defaultMarkup: decimal.NewFromFloat(defaultMarkupPct),
		lookupTimeout: lookupTimeout,
		now:           time.Now,
	}
}

// ── Reads ────────────────────────────────────────────────────────────────────

func (s *inventoryService) List(ctx context.Context, filter dto.VehicleFilter) (*dto.VehicleListResponse, error) {
	vehicles, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]dto.VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		if filter.Make != "" && !strings.EqualFold(v.Make, filter.Make) {
			continue
		}
		if filter.Status != "" && string(v.Status) != filter.Status {
			continue
		}
		items = append(items, toResponse(&v, nil))
	}
	return &dto.VehicleListResponse{Data: items, Total: len(items)}, nil
}

func (s *inventoryService) Get(ctx context.Context, vinNo string) (*dto.VehicleResponse, error) {
	vehicles, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	for i := range vehicles {
		if vehicles[i].VIN == vinNo {
			resp := toResponse(&vehicles[i], nil)
			return &resp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *inventoryService) SoldStats(ctx context.Context) (*dto.SoldStatsResponse, error) {
	vehicles, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	stats := &dto.SoldStatsResponse{}
	markupSum := decimal.Zero
	for _, v := range vehicles {
		if !v.Sold() {
			continue
		}
		stats.TotalSold++
		markupSum = markupSum.Add(v.MarkupPct)
		if v.Profit != nil {
			stats.TotalProfit = stats.TotalProfit.Add(*v.Profit)
		}
	}
	if stats.TotalSold > 0 {
		stats.AverageMarkupPct = markupSum.Div(decimal.NewFromInt(int64(stats.TotalSold))).Round(2)
	}
	return stats, nil
}

// ── Create ───────────────────────────────────────────────────────────────────
// Validation order: required fields → VIN syntax → VIN uniqueness →
// numerics. The oracle lookup (when wanted) runs before the write lock
// is taken and its failure is never fatal. The operation is
// all-or-nothing: snapshot, then persist, then invalidate the cache.

func (s *inventoryService) Create(ctx context.Context, req dto.CreateVehicleRequest) (*dto.VehicleResponse, error) {
	if err := requireFields(req.Make, req.Model, req.VIN); err != nil {
		return nil, err
	}
	if !vin.Valid(req.VIN) {
		return nil, ErrInvalidVin
	}

	status := model.Status(req.Status)
	if status == "" {
		status = model.StatusAvailable
	}
	if !status.ValidInitial() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	// Uniqueness is checked before the numerics: a request that is both
	// a duplicate and malformed reports the duplicate. The check repeats
	// authoritatively under the lock.
	known, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if indexOf(known, req.VIN) >= 0 {
		return nil, ErrDuplicateVin
	}

	if err := s.checkNumerics(req.ModelYear, req.Mileage, req.VehicleCost, req.PartsCost, req.LabourCost, req.MarkupPct); err != nil {
		return nil, err
	}

	markup := s.defaultMarkup
	if req.MarkupPct != nil {
		markup = *req.MarkupPct
	}

	var warnings []string
	override, warn := pricing.ParseOverride(req.MarketValue)
	if warn {
		warnings = append(warnings, "market_value override could not be parsed; using computed estimate")
	}
	// Lock-free enrichment, bounded by its own timeout.
	if override == nil && wantLookup(req.LookupMarketValue) {
		var failed bool
		override, failed = s.lookup(ctx, valuation.Request{
			VIN: req.VIN, Make: req.Make, Model: req.Model,
			Year: req.ModelYear, Mileage: req.Mileage,
		})
		if failed {
			warnings = append(warnings, "market value lookup unavailable; using computed estimate")
		}
	}

	quote, err := pricing.Compute(req.VehicleCost, req.PartsCost, req.LabourCost, markup, override)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.adapter.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range current {
		if v.VIN == req.VIN {
			return nil, ErrDuplicateVin
		}
	}

	now := s.now()
	vehicle := model.Vehicle{
		ID:             uuid.New(),
		VIN:            req.VIN,
		Make:           req.Make,
		Model:          req.Model,
		ModelYear:      req.ModelYear,
		Mileage:        req.Mileage,
		TitleState:     req.TitleState,
		CallingContact: req.CallingContact,
		Remark:         req.Remark,
		VehicleCost:    req.VehicleCost,
		PartsCost:      req.PartsCost,
		LabourCost:     req.LabourCost,
		MarkupPct:      markup,
		Cost:           quote.Cost,
		Price:          quote.Price,
		MarketValue:    quote.MarketValue,
		Status:         status,
		AddedAt:        now,
		UpdatedAt:      now,
	}

	if err := s.persist(ctx, current, vehicle, append(current, vehicle)); err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	s.warmValuation(ctx, vehicle)

	resp := toResponse(&vehicle, warnings)
	return &resp, nil
}

// ── Update ───────────────────────────────────────────────────────────────────

func (s *inventoryService) Update(ctx context.Context, vinNo string, req dto.UpdateVehicleRequest) (*dto.VehicleResponse, error) {
	// Pre-flight read outside the lock: existence check and lookup
	// descriptors for the merged record.
	existing, err := s.findDurable(ctx, vinNo)
	if err != nil {
		return nil, err
	}
	merged := applyPatch(*existing, req)

	if merged.Make == "" || merged.Model == "" {
		return nil, fmt.Errorf("%w: make and model must remain set", ErrMissingField)
	}
	if req.Status != nil {
		next := model.Status(*req.Status)
		if existing.Sold() {
			return nil, fmt.Errorf("%w: status is terminal", ErrAlreadySold)
		}
		if !next.ValidInitial() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
		}
	}
	if err := s.checkNumerics(merged.ModelYear, merged.Mileage, merged.VehicleCost, merged.PartsCost, merged.LabourCost, &merged.MarkupPct); err != nil {
		return nil, err
	}

	var warnings []string
	override, warn := pricing.ParseOverride(req.MarketValue)
	if warn {
		warnings = append(warnings, "market_value override could not be parsed; using computed estimate")
	}
	// Edits without a fresh override recompute the market value rather
	// than preserving a previous one, matching the legacy behavior.
	if override == nil && wantLookup(req.LookupMarketValue) {
		var failed bool
		override, failed = s.lookup(ctx, valuation.Request{
			VIN: vinNo, Make: merged.Make, Model: merged.Model,
			Year: merged.ModelYear, Mileage: merged.Mileage,
		})
		if failed {
			warnings = append(warnings, "market value lookup unavailable; using computed estimate")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.adapter.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(current, vinNo)
	if idx < 0 {
		return nil, ErrNotFound
	}
	// The pre-lock check ran against a possibly stale cache; the record
	// may have been sold since. Re-validate against the durable row.
	if req.Status != nil && current[idx].Sold() {
		return nil, fmt.Errorf("%w: status is terminal", ErrAlreadySold)
	}

	updated := applyPatch(current[idx], req)
	quote, err := pricing.Compute(updated.VehicleCost, updated.PartsCost, updated.LabourCost, updated.MarkupPct, override)
	if err != nil {
		return nil, err
	}
	updated.Cost = quote.Cost
	updated.Price = quote.Price
	updated.MarketValue = quote.MarketValue
	updated.UpdatedAt = s.now()

	all := make([]model.Vehicle, len(current))
	copy(all, current)
	all[idx] = updated

	if err := s.persist(ctx, current, updated, all); err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	s.warmValuation(ctx, updated)

	resp := toResponse(&updated, warnings)
	return &resp, nil
}

// ── MarkSold ─────────────────────────────────────────────────────────────────
// Sold is entered exactly once; profit figures derive from the record's
// cost at the moment of sale.

func (s *inventoryService) MarkSold(ctx context.Context, vinNo string, req dto.MarkSoldRequest) (*dto.VehicleResponse, error) {
	if req.SoldPrice.IsNegative() {
		return nil, fmt.Errorf("%w: sold_price must be non-negative", ErrInvalidAmount)
	}
	soldDate := s.now()
	if req.SoldDate != "" {
		t, err := time.Parse(soldDateLayout, req.SoldDate)
		if err != nil {
			return nil, fmt.Errorf("%w: sold_date must be YYYY-MM-DD", ErrInvalidAmount)
		}
		soldDate = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.adapter.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(current, vinNo)
	if idx < 0 {
		return nil, ErrNotFound
	}
	if current[idx].Sold() {
		return nil, ErrAlreadySold
	}

	sold := current[idx]
	profit, profitPct := pricing.ProfitOf(req.SoldPrice, sold.Cost)
	soldPrice := req.SoldPrice
	sold.Status = model.StatusSold
	sold.SoldPrice = &soldPrice
	sold.SoldDate = &soldDate
	sold.Profit = &profit
	sold.ProfitPct = &profitPct
	sold.SaleNotes = req.SaleNotes
	sold.UpdatedAt = s.now()

	all := make([]model.Vehicle, len(current))
	copy(all, current)
	all[idx] = sold

	if err := s.persist(ctx, current, sold, all); err != nil {
		return nil, err
	}
	s.cache.Invalidate()

	log.Info().Str("vin", vinNo).Str("sold_price", soldPrice.String()).Msg("vehicle sold")
	resp := toResponse(&sold, nil)
	return &resp, nil
}

// ── Internals ────────────────────────────────────────────────────────────────

// persist snapshots the pre-write state, then writes. A failed snapshot
// aborts the write (fail-closed): a mutation is never made durable
// without a backup of what it replaced.
func (s *inventoryService) persist(ctx context.Context, preWrite []model.Vehicle, changed model.Vehicle, all []model.Vehicle) error {
	ref, err := s.snaps.Snapshot(ctx, preWrite)
	if err != nil {
		return err
	}
	log.Debug().Str("backup", ref).Msg("pre-write snapshot taken")

	if s.upserter != nil {
		return s.upserter.UpsertOne(ctx, changed)
	}
	return s.adapter.WriteAll(ctx, all)
}

// lookup consults the oracle under its own deadline. Every failure
// degrades to "no estimate" — enrichment is never fatal and never holds
// the write lock. failed is true only when a configured oracle could
// not answer, so callers can surface a warning; no oracle at all is not
// a degradation.
func (s *inventoryService) lookup(ctx context.Context, req valuation.Request) (value *decimal.Decimal, failed bool) {
	if s.oracle == nil {
		return nil, false
	}
	timeout := s.lookupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := s.oracle.Lookup(lctx, req)
	if err != nil {
		log.Warn().Str("vin", req.VIN).Err(err).Msg("valuation lookup failed; using computed estimate")
		return nil, true
	}
	return &v, false
}

// warmValuation enqueues a best-effort cache warm job so the next quote
// for this VIN is served from cache. Fire and forget.
func (s *inventoryService) warmValuation(ctx context.Context, v model.Vehicle) {
	if s.dispatcher == nil || v.Sold() {
		return
	}
	_ = s.dispatcher.EnqueueValuationWarm(ctx, worker.ValuationJobPayload{
		VIN: v.VIN, Make: v.Make, Model: v.Model,
		Year: v.ModelYear, Mileage: v.Mileage,
	})
}

func (s *inventoryService) findDurable(ctx context.Context, vinNo string) (*model.Vehicle, error) {
	vehicles, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if idx := indexOf(vehicles, vinNo); idx >= 0 {
		return &vehicles[idx], nil
	}
	return nil, ErrNotFound
}

func (s *inventoryService) checkNumerics(modelYear, mileage int, vehicleCost, partsCost, labourCost decimal.Decimal, markup *decimal.Decimal) error {
	maxYear := s.now().Year() + 1
	if modelYear != 0 && (modelYear < 1900 || modelYear > maxYear) {
		return fmt.Errorf("%w: model_year must be between 1900 and %d", pricing.ErrInvalidNumeric, maxYear)
	}
	if mileage < 0 {
		return fmt.Errorf("%w: mileage must be non-negative", pricing.ErrInvalidNumeric)
	}
	for _, d := range []decimal.Decimal{vehicleCost, partsCost, labourCost} {
		if d.IsNegative() {
			return fmt.Errorf("%w: cost fields must be non-negative", pricing.ErrInvalidNumeric)
		}
	}
	if markup != nil && markup.IsNegative() {
		return fmt.Errorf("%w: markup_pct must be non-negative", pricing.ErrInvalidNumeric)
	}
	return nil
}

func requireFields(make_, model_, vinNo string) error {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(make_) == "" {
		missing = append(missing, "make")
	}
	if strings.TrimSpace(model_) == "" {
		missing = append(missing, "model")
	}
	if strings.TrimSpace(vinNo) == "" {
		missing = append(missing, "vin")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

func wantLookup(flag *bool) bool {
	return flag == nil || *flag
}

func indexOf(vehicles []model.Vehicle, vinNo string) int {
	for i := range vehicles {
		if vehicles[i].VIN == vinNo {
			return i
		}
	}
	return -1
}

func applyPatch(v model.Vehicle, req dto.UpdateVehicleRequest) model.Vehicle {
	if req.Make != nil {
		v.Make = *req.Make
	}
	if req.Model != nil {
		v.Model = *req.Model
	}
	if req.ModelYear != nil {
		v.ModelYear = *req.ModelYear
	}
	if req.Mileage != nil {
		v.Mileage = *req.Mileage
	}
	if req.VehicleCost != nil {
		v.VehicleCost = *req.VehicleCost
	}
	if req.PartsCost != nil {
		v.PartsCost = *req.PartsCost
	}
	if req.LabourCost != nil {
		v.LabourCost = *req.LabourCost
	}
	if req.MarkupPct != nil {
		v.MarkupPct = *req.MarkupPct
	}
	if req.TitleState != nil {
		v.TitleState = *req.TitleState
	}
	if req.CallingContact != nil {
		v.CallingContact = *req.CallingContact
	}
	if req.Remark != nil {
		v.Remark = *req.Remark
	}
	if req.Status != nil && !v.Sold() {
		v.Status = model.Status(*req.Status)
	}
	return v
}

func toResponse(v *model.Vehicle, warnings []string) dto.VehicleResponse {
	resp := dto.VehicleResponse{
		ID:             v.ID.String(),
		VIN:            v.VIN,
		Make:           v.Make,
		Model:          v.Model,
		ModelYear:      v.ModelYear,
		Mileage:        v.Mileage,
		TitleState:     v.TitleState,
		CallingContact: v.CallingContact,
		Remark:         v.Remark,
		VehicleCost:    v.VehicleCost,
		PartsCost:      v.PartsCost,
		LabourCost:     v.LabourCost,
		MarkupPct:      v.MarkupPct,
		Cost:           v.Cost,
		Price:          v.Price,
		MarketValue:    v.MarketValue,
		Status:         string(v.Status),
		SoldPrice:      v.SoldPrice,
		Profit:         v.Profit,
		ProfitPct:      v.ProfitPct,
		SaleNotes:      v.SaleNotes,
		Warnings:       warnings,
	}
	if v.SoldDate != nil {
		d := v.SoldDate.Format(soldDateLayout)
		resp.SoldDate = &d
	}
	if !v.AddedAt.IsZero() {
		resp.AddedAt = v.AddedAt.Format(time.RFC3339)
	}
	if !v.UpdatedAt.IsZero() {
		resp.UpdatedAt = v.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
