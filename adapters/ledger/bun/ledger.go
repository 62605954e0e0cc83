package ledgerbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// DefaultDSN keeps the ledger next to the working directory.
const DefaultDSN = "file:pdfgen.db?cache=shared"

// Ledger stores generation records in a Bun-backed database.
type Ledger struct {
	DB *bun.DB
}

// NewLedger creates a Bun-backed ledger.
func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{DB: db}
}

// Open connects to SQLite through sqliteshim and returns a Bun handle.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids "database is locked".
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CreateSchema creates the records table and its indexes if missing.
func (l *Ledger) CreateSchema(ctx context.Context) error {
	if l == nil || l.DB == nil {
		return pdfgen.NewError(pdfgen.KindNotConfigured, "ledger database not configured", nil)
	}
	if _, err := l.DB.NewCreateTable().Model((*recordModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	indexes := []struct {
		name   string
		column string
	}{
		{"generation_records_expires_at_idx", "expires_at"},
		{"generation_records_artifact_key_idx", "artifact_key"},
	}
	for _, idx := range indexes {
		_, err := l.DB.NewCreateIndex().
			Model((*recordModel)(nil)).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Record inserts a generation record.
func (l *Ledger) Record(ctx context.Context, record pdfgen.GenerationRecord) error {
	if l == nil || l.DB == nil {
		return pdfgen.NewError(pdfgen.KindNotConfigured, "ledger database not configured", nil)
	}
	if record.ID == "" {
		return pdfgen.NewError(pdfgen.KindValidation, "record ID is required", nil)
	}
	model := modelFromRecord(record)
	_, err := l.DB.NewInsert().Model(&model).Exec(ctx)
	return err
}

// Expired returns records whose artifacts expired at or before now, oldest first.
func (l *Ledger) Expired(ctx context.Context, now time.Time) ([]pdfgen.GenerationRecord, error) {
	if l == nil || l.DB == nil {
		return nil, pdfgen.NewError(pdfgen.KindNotConfigured, "ledger database not configured", nil)
	}

	models := make([]recordModel, 0)
	err := l.DB.NewSelect().Model(&models).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now.UTC()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]pdfgen.GenerationRecord, 0, len(models))
	for _, model := range models {
		records = append(records, model.toRecord())
	}
	return records, nil
}

// HasArtifact reports whether any record references key.
func (l *Ledger) HasArtifact(ctx context.Context, key string) (bool, error) {
	if l == nil || l.DB == nil {
		return false, pdfgen.NewError(pdfgen.KindNotConfigured, "ledger database not configured", nil)
	}
	if key == "" {
		return false, nil
	}
	return l.DB.NewSelect().Model((*recordModel)(nil)).Where("artifact_key = ?", key).Exists(ctx)
}

// Get returns a record by ID.
func (l *Ledger) Get(ctx context.Context, id string) (pdfgen.GenerationRecord, error) {
	if l == nil || l.DB == nil {
		return pdfgen.GenerationRecord{}, pdfgen.NewError(pdfgen.KindNotConfigured, "ledger database not configured", nil)
	}
	if id == "" {
		return pdfgen.GenerationRecord{}, pdfgen.NewError(pdfgen.KindValidation, "record ID is required", nil)
	}

	model := new(recordModel)
	err := l.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pdfgen.GenerationRecord{}, pdfgen.NewError(pdfgen.KindNotFound, fmt.Sprintf("record %q not found", id), nil)
		}
		return pdfgen.GenerationRecord{}, err
	}
	return model.toRecord(), nil
}

// Delete removes a record.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if l == nil || l.DB == nil {
		return pdfgen.NewError(pdfgen.KindNotConfigured, "ledger database not configured", nil)
	}
	if id == "" {
		return pdfgen.NewError(pdfgen.KindValidation, "record ID is required", nil)
	}

	res, err := l.DB.NewDelete().Model((*recordModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return pdfgen.NewError(pdfgen.KindNotFound, fmt.Sprintf("record %q not found", id), nil)
	}
	return nil
}

type recordModel struct {
	bun.BaseModel `bun:"table:generation_records,alias:generation_records"`

	ID          string    `bun:",pk"`
	Mode        string    `bun:",notnull"`
	Status      string    `bun:",notnull"`
	ArtifactKey string    `bun:"artifact_key"`
	Bytes       int64     `bun:"bytes"`
	Pages       int       `bun:"pages"`
	Error       string    `bun:"error"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,nullzero"`
}

func modelFromRecord(record pdfgen.GenerationRecord) recordModel {
	model := recordModel{
		ID:          record.ID,
		Mode:        string(record.Mode),
		Status:      string(record.Status),
		ArtifactKey: record.ArtifactKey,
		Bytes:       record.Bytes,
		Pages:       record.Pages,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt.UTC(),
	}
	if !record.ExpiresAt.IsZero() {
		model.ExpiresAt = record.ExpiresAt.UTC()
	}
	return model
}

func (m recordModel) toRecord() pdfgen.GenerationRecord {
	return pdfgen.GenerationRecord{
		ID:          m.ID,
		Mode:        pdfgen.Mode(m.Mode),
		Status:      pdfgen.RecordStatus(m.Status),
		ArtifactKey: m.ArtifactKey,
		Bytes:       m.Bytes,
		Pages:       m.Pages,
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}
}
