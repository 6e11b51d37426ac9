package repository

import (
	"context"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// MatchRepository keeps an append-only history of match results per ticket;
// the highest version is the current one.
type MatchRepository interface {
	SaveAll(ctx context.Context, batchID uuid.UUID, results []entity.MatchResult) error
	// Override records a manual pairing that supersedes the current result.
	// pageIndex entity.NoPage records a manual "no image" decision.
	Override(ctx context.Context, batchID uuid.UUID, ticketNumber int64, pageIndex int, imageKey, reviewer string) (entity.MatchResult, error)
	// Latest returns the current result for every ticket of the given batches.
	Latest(ctx context.Context, batchIDs ...uuid.UUID) ([]entity.MatchResult, error)
	History(ctx context.Context, batchID uuid.UUID, ticketNumber int64) ([]entity.MatchResult, error)
}

type matchRepo struct {
	db  *DB
	log *slog.Logger
}

func NewMatchRepository(db *DB, log *slog.Logger) MatchRepository {
	return &matchRepo{db: db, log: log}
}

var matchColumns = []string{
	"id", "batch_id", "ticket_number", "version", "page_index", "image_key", "confidence",
	"method", "disposition", "reviewed_by", "created_at",
}

func (r *matchRepo) insert(ctx context.Context, q querier, m *entity.MatchResult, version int) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	ins := r.db.builder().Insert(MatchesTable.Name).
		Columns(matchColumns...).
		Values(m.ID.String(), m.BatchID.String(), m.TicketNumber, version, m.PageIndex, m.ImageKey,
			m.Confidence, string(m.Method), string(m.Disposition), m.ReviewedBy, fmtTime(m.CreatedAt))
	return exec(ctx, q, ins)
}

func (r *matchRepo) SaveAll(ctx context.Context, batchID uuid.UUID, results []entity.MatchResult) error {
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		for i := range results {
			results[i].BatchID = batchID
			v, err := r.nextVersion(ctx, tx, batchID, results[i].TicketNumber)
			if err != nil {
				return err
			}
			if err := r.insert(ctx, tx, &results[i], v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("match results save failed", "batch_id", batchID, "err", err)
		return err
	}
	r.log.Info("match results saved", "batch_id", batchID, "count", len(results))
	return nil
}

func (r *matchRepo) Override(ctx context.Context, batchID uuid.UUID, ticketNumber int64, pageIndex int, imageKey, reviewer string) (entity.MatchResult, error) {
	m := entity.MatchResult{
		BatchID:      batchID,
		TicketNumber: ticketNumber,
		PageIndex:    pageIndex,
		ImageKey:     imageKey,
		Confidence:   1,
		Method:       constants.MatchManual,
		Disposition:  constants.DispositionMatched,
		ReviewedBy:   reviewer,
	}
	if pageIndex == entity.NoPage {
		m.ImageKey = ""
		m.Confidence = 0
		m.Disposition = constants.DispositionUnmatched
	}
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		v, err := r.nextVersion(ctx, tx, batchID, ticketNumber)
		if err != nil {
			return err
		}
		if v == 1 {
			return notFound("match for ticket %d in batch %s", ticketNumber, batchID)
		}
		return r.insert(ctx, tx, &m, v)
	})
	if err != nil {
		r.log.Error("match override failed", "batch_id", batchID, "ticket", ticketNumber, "err", err)
		return entity.MatchResult{}, err
	}
	r.log.Info("match overridden", "batch_id", batchID, "ticket", ticketNumber, "page", pageIndex, "reviewer", reviewer)
	return m, nil
}

func (r *matchRepo) nextVersion(ctx context.Context, q querier, batchID uuid.UUID, ticketNumber int64) (int, error) {
	sel := r.db.builder().Select("version").
		From(entsql.Table(MatchesTable.Name)).
		Where(entsql.And(entsql.EQ("batch_id", batchID.String()), entsql.EQ("ticket_number", ticketNumber))).
		OrderBy(entsql.Desc("version")).
		Limit(1)
	v := 0
	err := queryRows(ctx, q, sel, func(rows *entsql.Rows) error { return rows.Scan(&v) })
	return v + 1, err
}

func (r *matchRepo) Latest(ctx context.Context, batchIDs ...uuid.UUID) ([]entity.MatchResult, error) {
	if len(batchIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(batchIDs))
	for i, id := range batchIDs {
		ids[i] = id.String()
	}
	sel := r.db.builder().Select(matchColumns...).
		From(entsql.Table(MatchesTable.Name)).
		Where(entsql.In("batch_id", ids...)).
		OrderBy("batch_id", "ticket_number", "version")
	all, err := r.list(ctx, sel)
	if err != nil {
		r.log.Error("latest matches query failed", "batches", len(batchIDs), "err", err)
		return nil, err
	}
	// rows are ordered by version, so the last one per ticket wins
	var out []entity.MatchResult
	for i, m := range all {
		if i+1 < len(all) && all[i+1].BatchID == m.BatchID && all[i+1].TicketNumber == m.TicketNumber {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *matchRepo) History(ctx context.Context, batchID uuid.UUID, ticketNumber int64) ([]entity.MatchResult, error) {
	sel := r.db.builder().Select(matchColumns...).
		From(entsql.Table(MatchesTable.Name)).
		Where(entsql.And(entsql.EQ("batch_id", batchID.String()), entsql.EQ("ticket_number", ticketNumber))).
		OrderBy("version")
	return r.list(ctx, sel)
}

func (r *matchRepo) list(ctx context.Context, sel *entsql.Selector) ([]entity.MatchResult, error) {
	var out []entity.MatchResult
	err := queryRows(ctx, r.db.drv, sel, func(rows *entsql.Rows) error {
		var (
			m                           entity.MatchResult
			id, batch, method, disp, at string
			version                     int
		)
		if err := rows.Scan(&id, &batch, &m.TicketNumber, &version, &m.PageIndex, &m.ImageKey, &m.Confidence,
			&method, &disp, &m.ReviewedBy, &at); err != nil {
			return err
		}
		var err error
		if m.ID, err = parseUUID(id); err != nil {
			return err
		}
		if m.BatchID, err = parseUUID(batch); err != nil {
			return err
		}
		var ok bool
		if m.Method, ok = constants.ParseMatchMethod(method); !ok {
			return common.NewAppError("BAD_ROW", "unknown match method "+method, common.ErrDatabase)
		}
		if m.Disposition, ok = constants.ParseDisposition(disp); !ok {
			return common.NewAppError("BAD_ROW", "unknown disposition "+disp, common.ErrDatabase)
		}
		if m.CreatedAt, err = parseTime(at); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}
