package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Mossos12/AlemAuto/internal/backup"
	"github.com/Mossos12/AlemAuto/internal/model"
)

// vehicleDoc is the document-store encoding of a vehicle. Field names
// follow the legacy column names with spaces normalized to underscores.
// Money travels as strings to keep decimal fidelity.
type vehicleDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Make           string             `bson:"Make"`
	Mode           string             `bson:"Mode"`
	ModelYear      int                `bson:"Model_Year"`
	VIN            string             `bson:"VIN"`
	Mileage        int                `bson:"Mileage"`
	VehicleCost    string             `bson:"VEHCLE_COST"`
	PartsCost      string             `bson:"Parts_Cost"`
	LabourCost     string             `bson:"Labour_Cost"`
	TitleState     string             `bson:"Title_State"`
	Status         string             `bson:"Status"`
	Cost           string             `bson:"Cost"`
	MarkUp         string             `bson:"Mark_Up"`
	Price          string             `bson:"Price"`
	MarketValue    string             `bson:"Market_Value"`
	Calling        string             `bson:"Calling"`
	Remark         string             `bson:"Remark"`
	SoldDate       *time.Time         `bson:"Sold_Date,omitempty"`
	SoldPrice      *string            `bson:"Sold_Price,omitempty"`
	Profit         *string            `bson:"Profit,omitempty"`
	ProfitPct      *string            `bson:"Profit_Pct,omitempty"`
	SaleNotes      string             `bson:"Sale_Notes,omitempty"`
	AddedAt        time.Time          `bson:"Added_At"`
	UpdatedAt      time.Time          `bson:"Updated_At"`
}

// backupDoc is one snapshot in the backups collection: the timestamp
// key plus a full copy of the pre-write vehicle set.
type backupDoc struct {
	Timestamp string       `bson:"timestamp"`
	Vehicles  []vehicleDoc `bson:"vehicles"`
}

// MongoStore persists vehicles in a `vehicles` collection keyed by the
// generated document id with VIN equality lookups, and snapshots into a
// `backups` collection. Implements Adapter, Upserter and Snapshotter.
type MongoStore struct {
	vehicles *mongo.Collection
	backups  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		vehicles: db.Collection("vehicles"),
		backups:  db.Collection("backups"),
	}
}

// EnsureIndexes creates the unique VIN index. Called once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.vehicles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "VIN", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return persistErr("create vin index", err)
	}
	return nil
}

func (s *MongoStore) LoadAll(ctx context.Context) ([]model.Vehicle, error) {
	cur, err := s.vehicles.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "Added_At", Value: 1}}))
	if err != nil {
		return nil, persistErr("load vehicles", err)
	}
	var docs []vehicleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistErr("decode vehicles", err)
	}
	vehicles := make([]model.Vehicle, 0, len(docs))
	for _, d := range docs {
		v, err := d.toModel()
		if err != nil {
			return nil, persistErr("decode vehicle "+d.VIN, err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// WriteAll replaces the durable set. Multi-document transactions need a
// replica set, so instead of delete-then-insert every record is upserted
// first and stale VINs are pruned last: a mid-write failure can leave
// extra documents behind, never a truncated set.
func (s *MongoStore) WriteAll(ctx context.Context, vehicles []model.Vehicle) error {
	vins := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		vins = append(vins, v.VIN)
		if _, err := s.vehicles.ReplaceOne(ctx,
			bson.M{"VIN": v.VIN},
			fromModel(v),
			options.Replace().SetUpsert(true)); err != nil {
			return persistErr("write vehicle "+v.VIN, err)
		}
	}
	if _, err := s.vehicles.DeleteMany(ctx, bson.M{"VIN": bson.M{"$nin": vins}}); err != nil {
		return persistErr("prune vehicles", err)
	}
	return nil
}

// UpsertOne replaces the document whose VIN matches (limit 1 by key
// uniqueness), inserting when absent.
func (s *MongoStore) UpsertOne(ctx context.Context, v model.Vehicle) error {
	_, err := s.vehicles.ReplaceOne(ctx,
		bson.M{"VIN": v.VIN},
		fromModel(v),
		options.Replace().SetUpsert(true))
	if err != nil {
		return persistErr("upsert vehicle", err)
	}
	return nil
}

// Snapshot inserts one {timestamp, vehicles} document into backups.
func (s *MongoStore) Snapshot(ctx context.Context, vehicles []model.Vehicle) (string, error) {
	key := backup.UniqueKey(time.Now(), func(k string) bool {
		n, err := s.backups.CountDocuments(ctx, bson.M{"timestamp": k})
		return err == nil && n > 0
	})

	docs := make([]vehicleDoc, 0, len(vehicles))
	for _, v := range vehicles {
		docs = append(docs, fromModel(v))
	}
	if _, err := s.backups.InsertOne(ctx, backupDoc{Timestamp: key, Vehicles: docs}); err != nil {
		return "", persistErr("write snapshot", err)
	}
	return key, nil
}

// ── doc ↔ model mapping ──────────────────────────────────────────────────────

func fromModel(v model.Vehicle) vehicleDoc {
	doc := vehicleDoc{
		Make:        v.Make,
		Mode:        v.Model,
		ModelYear:   v.ModelYear,
		VIN:         v.VIN,
		Mileage:     v.Mileage,
		VehicleCost: v.VehicleCost.String(),
		PartsCost:   v.PartsCost.String(),
		LabourCost:  v.LabourCost.String(),
		TitleState:  v.TitleState,
		Status:      string(v.Status),
		Cost:        v.Cost.String(),
		MarkUp:      v.MarkupPct.String(),
		Price:       v.Price.String(),
		MarketValue: v.MarketValue.String(),
		Calling:     v.CallingContact,
		Remark:      v.Remark,
		SaleNotes:   v.SaleNotes,
		SoldDate:    v.SoldDate,
		AddedAt:     v.AddedAt,
		UpdatedAt:   v.UpdatedAt,
	}
	if v.SoldPrice != nil {
		s := v.SoldPrice.String()
		doc.SoldPrice = &s
	}
	if v.Profit != nil {
		s := v.Profit.String()
		doc.Profit = &s
	}
	if v.ProfitPct != nil {
		s := v.ProfitPct.String()
		doc.ProfitPct = &s
	}
	return doc
}

func (d vehicleDoc) toModel() (model.Vehicle, error) {
	v := model.Vehicle{
		ID:             uuid.New(),
		Make:           d.Make,
		Model:          d.Mode,
		ModelYear:      d.ModelYear,
		VIN:            d.VIN,
		Mileage:        d.Mileage,
		TitleState:     d.TitleState,
		CallingContact: d.Calling,
		Remark:         d.Remark,
		SaleNotes:      d.SaleNotes,
		Status:         model.Status(d.Status),
		SoldDate:       d.SoldDate,
		AddedAt:        d.AddedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if v.Status == "" {
		v.Status = model.StatusAvailable
	}

	var err error
	parse := func(s string) decimal.Decimal {
		if err != nil || s == "" {
			return decimal.Zero
		}
		var d decimal.Decimal
		d, err = decimal.NewFromString(s)
		return d
	}
	v.VehicleCost = parse(d.VehicleCost)
	v.PartsCost = parse(d.PartsCost)
	v.LabourCost = parse(d.LabourCost)
	v.MarkupPct = parse(d.MarkUp)
	v.Cost = parse(d.Cost)
	v.Price = parse(d.Price)
	v.MarketValue = parse(d.MarketValue)
	if d.SoldPrice != nil {
		sp := parse(*d.SoldPrice)
		v.SoldPrice = &sp
	}
	if d.Profit != nil {
		p := parse(*d.Profit)
		v.Profit = &p
	}
	if d.ProfitPct != nil {
		p := parse(*d.ProfitPct)
		v.ProfitPct = &p
	}
	return v, err
}

var (
	_ Adapter            = (*MongoStore)(nil)
	_ Upserter           = (*MongoStore)(nil)
	_ backup.Snapshotter = (*MongoStore)(nil)
)
