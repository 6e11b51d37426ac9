package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

type BatchRepository interface {
	Create(ctx context.Context, b *entity.Batch) error
	SetStatus(ctx context.Context, id uuid.UUID, status constants.BatchStatus) error
	Finish(ctx context.Context, b *entity.Batch) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error)
}

type batchRepo struct {
	db  *DB
	log *slog.Logger
}

func NewBatchRepository(db *DB, log *slog.Logger) BatchRepository {
	return &batchRepo{db: db, log: log}
}

func (r *batchRepo) Create(ctx context.Context, b *entity.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = constants.BatchQueued
	}
	q := r.db.builder().Insert(BatchesTable.Name).
		Columns("id", "sheet_path", "pdf_path", "client_hint", "status", "submitted_by", "submitted_at", "error").
		Values(b.ID.String(), b.SheetPath, b.PDFPath, b.ClientHint, string(b.Status), b.SubmittedBy, fmtTime(b.SubmittedAt), "")
	if err := exec(ctx, r.db.drv, q); err != nil {
		r.log.Error("batch create failed", "batch_id", b.ID, "err", err)
		return err
	}
	r.log.Info("batch created", "batch_id", b.ID, "sheet", b.SheetPath, "pdf", b.PDFPath)
	return nil
}

func (r *batchRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.BatchStatus) error {
	q := r.db.builder().Update(BatchesTable.Name).
		Set("status", string(status)).
		Where(entsql.EQ("id", id.String()))
	n, err := execCount(ctx, r.db.drv, q)
	if err != nil {
		r.log.Error("batch status update failed", "batch_id", id, "status", status, "err", err)
		return err
	}
	if n == 0 {
		return notFound("batch %s", id)
	}
	return nil
}

// Finish stores the terminal status, reports and error message of b.
func (r *batchRepo) Finish(ctx context.Context, b *entity.Batch) error {
	now := time.Now().UTC()
	b.FinishedAt = &now
	parse, err := toJSON(b.Parse)
	if err != nil {
		return err
	}
	extraction, err := toJSON(b.Extraction)
	if err != nil {
		return err
	}
	q := r.db.builder().Update(BatchesTable.Name).
		Set("status", string(b.Status)).
		Set("finished_at", fmtTime(now)).
		Set("error", b.Error).
		Set("parse_report", parse).
		Set("extraction", extraction).
		Where(entsql.EQ("id", b.ID.String()))
	if err := exec(ctx, r.db.drv, q); err != nil {
		r.log.Error("batch finish failed", "batch_id", b.ID, "err", err)
		return err
	}
	r.log.Info("batch finished", "batch_id", b.ID, "status", b.Status)
	return nil
}

func (r *batchRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	q := r.db.builder().Select("id", "sheet_path", "pdf_path", "client_hint", "status", "submitted_by",
		"submitted_at", "finished_at", "error", "parse_report", "extraction").
		From(entsql.Table(BatchesTable.Name)).
		Where(entsql.EQ("id", id.String()))

	var out *entity.Batch
	err := queryRows(ctx, r.db.drv, q, func(rows *entsql.Rows) error {
		var (
			b                  entity.Batch
			idS, status, subAt string
			finished           sql.NullString
			parse, extraction  sql.NullString
		)
		if err := rows.Scan(&idS, &b.SheetPath, &b.PDFPath, &b.ClientHint, &status, &b.SubmittedBy,
			&subAt, &finished, &b.Error, &parse, &extraction); err != nil {
			return err
		}
		var err error
		if b.ID, err = parseUUID(idS); err != nil {
			return err
		}
		b.Status = constants.BatchStatus(status)
		if b.SubmittedAt, err = parseTime(subAt); err != nil {
			return err
		}
		if b.FinishedAt, err = parseNullTime(finished); err != nil {
			return err
		}
		if b.Parse, err = fromJSON[entity.ParseReport](parse); err != nil {
			return err
		}
		if b.Extraction, err = fromJSON[entity.ExtractionResult](extraction); err != nil {
			return err
		}
		out = &b
		return nil
	})
	if err != nil {
		r.log.Error("batch get failed", "batch_id", id, "err", err)
		return nil, err
	}
	if out == nil {
		return nil, notFound("batch %s", id)
	}
	return out, nil
}
