package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// AuditFilter narrows an audit listing; zero fields match everything.
type AuditFilter struct {
	ExportID uuid.UUID
	Outcome  constants.AuditOutcome
	Since    time.Time
	Until    time.Time
	Limit    int
}

// AuditRepository is append-only: entries are never updated or deleted.
type AuditRepository interface {
	Append(ctx context.Context, e *entity.AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]entity.AuditEntry, error)
}

type auditRepo struct {
	db  *DB
	log *slog.Logger
}

func NewAuditRepository(db *DB, log *slog.Logger) AuditRepository {
	return &auditRepo{db: db, log: log}
}

var auditColumns = []string{
	"id", "export_id", "outcome", "state", "user_id", "role", "recorded_at", "from_date", "to_date",
	"force", "ticket_count", "total_amount", "bundle_path", "report",
}

func (r *auditRepo) Append(ctx context.Context, e *entity.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	report, err := json.Marshal(e.Report)
	if err != nil {
		return err
	}
	q := r.db.builder().Insert(AuditEntriesTable.Name).
		Columns(auditColumns...).
		Values(e.ID.String(), e.ExportID.String(), string(e.Outcome), string(e.State), e.UserID, e.Role,
			fmtTime(e.RecordedAt), fmtDate(e.From), fmtDate(e.To), e.Force, e.TicketCount, e.TotalAmount,
			e.BundlePath, string(report))
	if err := exec(ctx, r.db.drv, q); err != nil {
		r.log.Error("audit append failed", "export_id", e.ExportID, "err", err)
		return err
	}
	r.log.Info("audit recorded", "audit_id", e.ID, "export_id", e.ExportID, "outcome", e.Outcome, "state", e.State)
	return nil
}

func (r *auditRepo) List(ctx context.Context, f AuditFilter) ([]entity.AuditEntry, error) {
	var preds []*entsql.Predicate
	if f.ExportID != uuid.Nil {
		preds = append(preds, entsql.EQ("export_id", f.ExportID.String()))
	}
	if f.Outcome != "" {
		preds = append(preds, entsql.EQ("outcome", string(f.Outcome)))
	}
	if !f.Since.IsZero() {
		preds = append(preds, entsql.GTE("recorded_at", fmtTime(f.Since)))
	}
	if !f.Until.IsZero() {
		preds = append(preds, entsql.LT("recorded_at", fmtTime(f.Until)))
	}
	q := r.db.builder().Select(auditColumns...).
		From(entsql.Table(AuditEntriesTable.Name)).
		OrderBy("recorded_at", "id")
	if len(preds) > 0 {
		q.Where(entsql.And(preds...))
	}
	if f.Limit > 0 {
		q.Limit(f.Limit)
	}

	var out []entity.AuditEntry
	err := queryRows(ctx, r.db.drv, q, func(rows *entsql.Rows) error {
		var (
			e                                entity.AuditEntry
			id, exportID, outcome, state, at string
			from, to, report                 string
		)
		if err := rows.Scan(&id, &exportID, &outcome, &state, &e.UserID, &e.Role, &at, &from, &to,
			&e.Force, &e.TicketCount, &e.TotalAmount, &e.BundlePath, &report); err != nil {
			return err
		}
		var err error
		if e.ID, err = parseUUID(id); err != nil {
			return err
		}
		if e.ExportID, err = parseUUID(exportID); err != nil {
			return err
		}
		e.Outcome = constants.AuditOutcome(outcome)
		e.State = constants.ExportState(state)
		if e.RecordedAt, err = parseTime(at); err != nil {
			return err
		}
		if e.From, err = parseDate(from); err != nil {
			return err
		}
		if e.To, err = parseDate(to); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(report), &e.Report); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		r.log.Error("audit list failed", "err", err)
		return nil, err
	}
	return out, nil
}
