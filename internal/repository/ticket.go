package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

type TicketRepository interface {
	// SaveAll inserts the tickets of one batch in a single transaction.
	SaveAll(ctx context.Context, batchID uuid.UUID, tickets []entity.Ticket) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.Ticket, error)
	// ListInRange returns tickets whose entry date falls in [from, to]. Only
	// tickets of MATCHED batches are listed; a batch that failed midway
	// leaves nothing billable behind.
	ListInRange(ctx context.Context, from, to time.Time) ([]entity.Ticket, error)
}

type ticketRepo struct {
	db  *DB
	loc *time.Location
	log *slog.Logger
}

// NewTicketRepository stores entry dates as calendar days in loc, the zone
// export ranges are expressed in.
func NewTicketRepository(db *DB, loc *time.Location, log *slog.Logger) TicketRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &ticketRepo{db: db, loc: loc, log: log}
}

var ticketColumns = []string{
	"id", "batch_id", "number", "status", "entry_date", "entry_at", "exit_at", "gross", "tare", "net",
	"raw_reference", "reference", "reference_note", "material", "vehicle", "license", "attendant",
	"source_file", "source_row",
}

func (r *ticketRepo) SaveAll(ctx context.Context, batchID uuid.UUID, tickets []entity.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		for i := range tickets {
			t := &tickets[i]
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			t.BatchID = batchID
			q := r.db.builder().Insert(TicketsTable.Name).
				Columns(ticketColumns...).
				Values(t.ID.String(), batchID.String(), t.Number, string(t.Status),
					fmtDate(t.EntryDate(r.loc)), fmtTime(t.EntryAt), nullTime(t.ExitAt),
					t.Gross.String(), t.Tare.String(), t.Net.String(),
					t.RawReference, t.Reference.Primary, t.Reference.Note, t.Material,
					t.Vehicle, t.License, t.Attendant, t.SourceFile, t.SourceRow)
			if err := exec(ctx, tx, q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("tickets save failed", "batch_id", batchID, "count", len(tickets), "err", err)
		return err
	}
	r.log.Info("tickets saved", "batch_id", batchID, "count", len(tickets))
	return nil
}

func (r *ticketRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.Ticket, error) {
	q := r.db.builder().Select(ticketColumns...).
		From(entsql.Table(TicketsTable.Name)).
		Where(entsql.EQ("batch_id", batchID.String())).
		OrderBy("number")
	out, err := r.list(ctx, q)
	if err != nil {
		r.log.Error("tickets list failed", "batch_id", batchID, "err", err)
	}
	return out, err
}

func (r *ticketRepo) ListInRange(ctx context.Context, from, to time.Time) ([]entity.Ticket, error) {
	q := r.db.builder().Select(ticketColumns...).
		From(entsql.Table(TicketsTable.Name)).
		Where(entsql.And(
			entsql.GTE("entry_date", fmtDate(from)),
			entsql.LTE("entry_date", fmtDate(to)),
			entsql.In("batch_id", r.db.builder().Select("id").
				From(entsql.Table(BatchesTable.Name)).
				Where(entsql.EQ("status", string(constants.BatchMatched)))),
		)).
		OrderBy("number", "entry_at")
	out, err := r.list(ctx, q)
	if err != nil {
		r.log.Error("tickets range query failed", "from", fmtDate(from), "to", fmtDate(to), "err", err)
	}
	return out, err
}

func (r *ticketRepo) list(ctx context.Context, q *entsql.Selector) ([]entity.Ticket, error) {
	var out []entity.Ticket
	err := queryRows(ctx, r.db.drv, q, func(rows *entsql.Rows) error {
		var (
			t                  entity.Ticket
			id, batch, status  string
			entryDate, entryAt string
			exitAt             sql.NullString
			gross, tare, net   string
		)
		if err := rows.Scan(&id, &batch, &t.Number, &status, &entryDate, &entryAt, &exitAt,
			&gross, &tare, &net, &t.RawReference, &t.Reference.Primary, &t.Reference.Note, &t.Material,
			&t.Vehicle, &t.License, &t.Attendant, &t.SourceFile, &t.SourceRow); err != nil {
			return err
		}
		var err error
		if t.ID, err = parseUUID(id); err != nil {
			return err
		}
		if t.BatchID, err = parseUUID(batch); err != nil {
			return err
		}
		var ok bool
		if t.Status, ok = constants.ParseTicketStatus(status); !ok {
			return common.NewAppError("BAD_ROW", "unknown ticket status "+status, common.ErrDatabase)
		}
		if t.EntryAt, err = parseTime(entryAt); err != nil {
			return err
		}
		t.EntryAt = t.EntryAt.In(r.loc)
		if t.ExitAt, err = parseNullTime(exitAt); err != nil {
			return err
		}
		if t.ExitAt != nil {
			e := t.ExitAt.In(r.loc)
			t.ExitAt = &e
		}
		if t.Gross, err = parseDecimal(gross); err != nil {
			return err
		}
		if t.Tare, err = parseDecimal(tare); err != nil {
			return err
		}
		if t.Net, err = parseDecimal(net); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}
