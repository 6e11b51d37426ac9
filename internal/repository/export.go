package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// ExportTransition is one step in an export's state history.
type ExportTransition struct {
	From constants.ExportState `json:"from"`
	To   constants.ExportState `json:"to"`
	At   time.Time             `json:"at"`
}

// ExportUpdate carries optional fields written with a transition.
type ExportUpdate struct {
	Report     *entity.Report
	BundlePath *string
}

type ExportRepository interface {
	Create(ctx context.Context, rec *entity.ExportRecord) error
	// Transition moves an export from one state to the next. It fails with
	// ErrConflict if the stored state is no longer from.
	Transition(ctx context.Context, id uuid.UUID, from, to constants.ExportState, upd ExportUpdate) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ExportRecord, error)
	History(ctx context.Context, id uuid.UUID) ([]ExportTransition, error)
	// Supersede marks earlier downloadable exports of the same range as replaced by id.
	Supersede(ctx context.Context, id uuid.UUID, from, to time.Time) (int64, error)
}

type exportRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExportRepository(db *DB, log *slog.Logger) ExportRepository {
	return &exportRepo{db: db, log: log}
}

func (r *exportRepo) Create(ctx context.Context, rec *entity.ExportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if rec.State == "" {
		rec.State = constants.ExportRequested
	}
	report, err := toJSON(&rec.Report)
	if err != nil {
		return err
	}
	b := r.db.builder()
	err = r.db.inTx(ctx, func(tx dialect.Tx) error {
		if err := exec(ctx, tx, b.Insert(ExportsTable.Name).
			Columns("id", "from_date", "to_date", "client_filter", "force", "include_images", "state",
				"bundle_path", "requested_by", "report", "created_at", "updated_at").
			Values(rec.ID.String(), fmtDate(rec.From), fmtDate(rec.To), rec.ClientFilter, rec.Force, rec.IncludeImages,
				string(rec.State), rec.BundlePath, rec.RequestedBy, report, fmtTime(now), fmtTime(now))); err != nil {
			return err
		}
		return r.addTransition(ctx, tx, rec.ID, "", rec.State, now)
	})
	if err != nil {
		r.log.Error("export create failed", "export_id", rec.ID, "err", err)
		return err
	}
	r.log.Info("export created", "export_id", rec.ID, "from", fmtDate(rec.From), "to", fmtDate(rec.To), "force", rec.Force)
	return nil
}

func (r *exportRepo) addTransition(ctx context.Context, q querier, id uuid.UUID, from, to constants.ExportState, at time.Time) error {
	return exec(ctx, q, r.db.builder().Insert(ExportTransitionsTable.Name).
		Columns("id", "export_id", "from_state", "to_state", "at").
		Values(uuid.NewString(), id.String(), string(from), string(to), fmtTime(at)))
}

func (r *exportRepo) Transition(ctx context.Context, id uuid.UUID, from, to constants.ExportState, upd ExportUpdate) error {
	if !constants.CanTransition(from, to) {
		return common.NewAppError("BAD_TRANSITION", fmt.Sprintf("export cannot move from %s to %s", from, to), common.ErrInvalidInput)
	}
	now := time.Now().UTC()
	q := r.db.builder().Update(ExportsTable.Name).
		Set("state", string(to)).
		Set("updated_at", fmtTime(now)).
		Where(entsql.And(entsql.EQ("id", id.String()), entsql.EQ("state", string(from))))
	if upd.Report != nil {
		report, err := toJSON(upd.Report)
		if err != nil {
			return err
		}
		q.Set("report", report)
	}
	if upd.BundlePath != nil {
		q.Set("bundle_path", *upd.BundlePath)
	}

	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		n, err := execCount(ctx, tx, q)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.NewAppError("STALE_STATE", fmt.Sprintf("export %s is not in state %s", id, from), common.ErrConflict)
		}
		return r.addTransition(ctx, tx, id, from, to, now)
	})
	if err != nil {
		r.log.Error("export transition failed", "export_id", id, "from", from, "to", to, "err", err)
		return err
	}
	r.log.Info("export transitioned", "export_id", id, "from", from, "to", to)
	return nil
}

func (r *exportRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ExportRecord, error) {
	q := r.db.builder().Select("id", "from_date", "to_date", "client_filter", "force", "include_images", "state",
		"bundle_path", "requested_by", "report", "created_at", "updated_at", "superseded_by").
		From(entsql.Table(ExportsTable.Name)).
		Where(entsql.EQ("id", id.String()))

	var out *entity.ExportRecord
	err := queryRows(ctx, r.db.drv, q, func(rows *entsql.Rows) error {
		var (
			rec                               entity.ExportRecord
			idS, from, to, state, created, up string
			report, superseded                sql.NullString
		)
		if err := rows.Scan(&idS, &from, &to, &rec.ClientFilter, &rec.Force, &rec.IncludeImages, &state,
			&rec.BundlePath, &rec.RequestedBy, &report, &created, &up, &superseded); err != nil {
			return err
		}
		var err error
		if rec.ID, err = parseUUID(idS); err != nil {
			return err
		}
		if rec.From, err = parseDate(from); err != nil {
			return err
		}
		if rec.To, err = parseDate(to); err != nil {
			return err
		}
		rec.State = constants.ExportState(state)
		rp, err := fromJSON[entity.Report](report)
		if err != nil {
			return err
		}
		if rp != nil {
			rec.Report = *rp
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		if rec.UpdatedAt, err = parseTime(up); err != nil {
			return err
		}
		if superseded.Valid && superseded.String != "" {
			sid, err := parseUUID(superseded.String)
			if err != nil {
				return err
			}
			rec.SupersededBy = &sid
		}
		out = &rec
		return nil
	})
	if err != nil {
		r.log.Error("export get failed", "export_id", id, "err", err)
		return nil, err
	}
	if out == nil {
		return nil, notFound("export %s", id)
	}
	return out, nil
}

func (r *exportRepo) History(ctx context.Context, id uuid.UUID) ([]ExportTransition, error) {
	q := r.db.builder().Select("from_state", "to_state", "at").
		From(entsql.Table(ExportTransitionsTable.Name)).
		Where(entsql.EQ("export_id", id.String())).
		OrderBy("at")
	var out []ExportTransition
	err := queryRows(ctx, r.db.drv, q, func(rows *entsql.Rows) error {
		var from, to, at string
		if err := rows.Scan(&from, &to, &at); err != nil {
			return err
		}
		t, err := parseTime(at)
		if err != nil {
			return err
		}
		out = append(out, ExportTransition{From: constants.ExportState(from), To: constants.ExportState(to), At: t})
		return nil
	})
	return out, err
}

func (r *exportRepo) Supersede(ctx context.Context, id uuid.UUID, from, to time.Time) (int64, error) {
	q := r.db.builder().Update(ExportsTable.Name).
		Set("superseded_by", id.String()).
		Set("updated_at", fmtTime(time.Now().UTC())).
		Where(entsql.And(
			entsql.EQ("from_date", fmtDate(from)),
			entsql.EQ("to_date", fmtDate(to)),
			entsql.EQ("state", string(constants.ExportDownload)),
			entsql.NEQ("id", id.String()),
			entsql.IsNull("superseded_by"),
		))
	n, err := execCount(ctx, r.db.drv, q)
	if err != nil {
		r.log.Error("export supersede failed", "export_id", id, "err", err)
		return 0, err
	}
	if n > 0 {
		r.log.Info("exports superseded", "export_id", id, "count", n)
	}
	return n, nil
}
