package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Mossos12/AlemAuto/internal/backup"
	"github.com/Mossos12/AlemAuto/internal/model"
	"github.com/Mossos12/AlemAuto/internal/pricing"
)

// csvHeader is the legacy flat-file column order, kept byte-for-byte
// compatible (misspellings included) so files written by the old tool
// load unchanged.
var csvHeader = []string{
	"Make", "Mode", "Model Year", "VIN", "Mileage", "VEHCLE COST",
	"Parts Cost", "Labour Cost", "Title State", "Status",
	"Cost", "Mark Up", "Price", "Market Value", "Calling", "Remark",
	"Sold_Date", "Sold_Price",
}

const soldDateLayout = "2006-01-02"

// FileStore persists the record set as a single CSV file with whole-set
// replace semantics, and snapshots into a sibling backup directory.
// It implements both storage.Adapter and backup.Snapshotter.
type FileStore struct {
	path      string
	backupDir string
	prefix    string
}

// NewFileStore creates a flat-file adapter rooted at path, with backups
// under backupDir. Directories are created on demand.
func NewFileStore(path, backupDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, persistErr("create data dir", err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, persistErr("create backup dir", err)
	}
	base := filepath.Base(path)
	prefix := strings.TrimSuffix(base, filepath.Ext(base))
	return &FileStore{path: path, backupDir: backupDir, prefix: prefix}, nil
}

// LoadAll reads the full set in file order. A missing file is an empty
// inventory, not an error (first run).
func (s *FileStore) LoadAll(_ context.Context) ([]model.Vehicle, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Vehicle{}, nil
	}
	if err != nil {
		return nil, persistErr("open data file", err)
	}
	defer f.Close()

	vehicles, err := decodeCSV(f)
	if err != nil {
		return nil, persistErr("decode data file", err)
	}
	return vehicles, nil
}

// WriteAll replaces the durable set atomically: encode to a temp file in
// the same directory, then rename over the data file.
func (s *FileStore) WriteAll(_ context.Context, vehicles []model.Vehicle) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".vehicles-*.csv")
	if err != nil {
		return persistErr("create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeCSV(tmp, vehicles); err != nil {
		tmp.Close()
		return persistErr("encode data file", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("close temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return persistErr("replace data file", err)
	}
	return nil
}

// Snapshot writes the pre-write state as an immutable CSV artifact named
// <prefix>_<YYYYMMDD_HHMMSS>.csv in the backup directory.
func (s *FileStore) Snapshot(_ context.Context, vehicles []model.Vehicle) (string, error) {
	key := backup.UniqueKey(time.Now(), func(k string) bool {
		_, err := os.Stat(s.backupPath(k))
		return err == nil
	})
	path := s.backupPath(key)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", persistErr("create backup", err)
	}
	if err := encodeCSV(f, vehicles); err != nil {
		f.Close()
		return "", persistErr("write backup", err)
	}
	if err := f.Close(); err != nil {
		return "", persistErr("close backup", err)
	}
	log.Debug().Str("backup", path).Int("records", len(vehicles)).Msg("snapshot written")
	return path, nil
}

func (s *FileStore) backupPath(key string) string {
	return filepath.Join(s.backupDir, fmt.Sprintf("%s_%s.csv", s.prefix, key))
}

// ── CSV codec ────────────────────────────────────────────────────────────────

func encodeCSV(w io.Writer, vehicles []model.Vehicle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, v := range vehicles {
		soldDate, soldPrice := "", ""
		if v.SoldDate != nil {
			soldDate = v.SoldDate.Format(soldDateLayout)
		}
		if v.SoldPrice != nil {
			soldPrice = v.SoldPrice.StringFixed(2)
		}
		row := []string{
			v.Make,
			v.Model,
			strconv.Itoa(v.ModelYear),
			v.VIN,
			strconv.Itoa(v.Mileage),
			v.VehicleCost.StringFixed(2),
			v.PartsCost.StringFixed(2),
			v.LabourCost.StringFixed(2),
			v.TitleState,
			string(v.Status),
			v.Cost.StringFixed(2),
			v.MarkupPct.StringFixed(2),
			v.Price.StringFixed(2),
			v.MarketValue.StringFixed(2),
			v.CallingContact,
			v.Remark,
			soldDate,
			soldPrice,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeCSV(r io.Reader) ([]model.Vehicle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // legacy files may lack the sold columns

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []model.Vehicle{}, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}

	vehicles := make([]model.Vehicle, 0, len(rows)-1)
	for _, row := range rows[1:] {
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		money := func(name string) (decimal.Decimal, error) {
			return pricing.Coerce(field(name))
		}

		v := model.Vehicle{
			ID:             uuid.New(),
			Make:           field("Make"),
			Model:          field("Mode"),
			VIN:            field("VIN"),
			TitleState:     field("Title State"),
			CallingContact: field("Calling"),
			Remark:         field("Remark"),
			Status:         model.Status(field("Status")),
		}
		if v.Status == "" {
			v.Status = model.StatusAvailable
		}
		v.ModelYear, _ = strconv.Atoi(field("Model Year"))
		v.Mileage, _ = strconv.Atoi(field("Mileage"))

		var convErr error
		assign := func(dst *decimal.Decimal, name string) {
			d, err := money(name)
			if err != nil && convErr == nil {
				convErr = fmt.Errorf("row VIN %s, column %q: %w", v.VIN, name, err)
			}
			*dst = d
		}
		assign(&v.VehicleCost, "VEHCLE COST")
		assign(&v.PartsCost, "Parts Cost")
		assign(&v.LabourCost, "Labour Cost")
		assign(&v.MarkupPct, "Mark Up")
		assign(&v.Cost, "Cost")
		assign(&v.Price, "Price")
		assign(&v.MarketValue, "Market Value")
		if convErr != nil {
			return nil, convErr
		}

		if sp := field("Sold_Price"); sp != "" {
			d, err := pricing.Coerce(sp)
			if err != nil {
				return nil, fmt.Errorf("row VIN %s, column Sold_Price: %w", v.VIN, err)
			}
			v.SoldPrice = &d
			// The legacy format does not carry profit columns; re-derive.
			profit, pct := pricing.ProfitOf(d, v.Cost)
			v.Profit = &profit
			v.ProfitPct = &pct
		}
		if sd := field("Sold_Date"); sd != "" {
			t, err := time.Parse(soldDateLayout, sd)
			if err == nil {
				v.SoldDate = &t
			}
		}

		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}
