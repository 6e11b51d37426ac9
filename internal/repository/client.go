package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

// ClientRepository exposes client reference data. Clients are maintained
// elsewhere; Import exists for seeding and fixtures.
type ClientRepository interface {
	List(ctx context.Context) ([]entity.Client, error)
	Import(ctx context.Context, clients []entity.Client) error
}

type clientRepo struct {
	db  *DB
	log *slog.Logger
}

func NewClientRepository(db *DB, log *slog.Logger) ClientRepository {
	return &clientRepo{db: db, log: log}
}

// Import replaces each client, its patterns and its rates.
func (r *clientRepo) Import(ctx context.Context, clients []entity.Client) error {
	b := r.db.builder()
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		for _, c := range clients {
			// patterns and rates go with the client row
			if err := exec(ctx, tx, b.Delete(ClientsTable.Name).Where(entsql.EQ("id", c.ID))); err != nil {
				return err
			}
			if err := exec(ctx, tx, b.Insert(ClientsTable.Name).
				Columns("id", "name", "invoice_frequency", "credit_terms_days", "active").
				Values(c.ID, c.Name, c.InvoiceFrequency, c.CreditTermsDays, c.Active)); err != nil {
				return err
			}
			for _, p := range c.Patterns {
				if err := exec(ctx, tx, b.Insert(ClientPatternsTable.Name).
					Columns("id", "client_id", "pattern", "kind", "priority", "active").
					Values(uuid.NewString(), c.ID, p.Pattern, string(p.Kind), p.Priority, p.Active)); err != nil {
					return err
				}
			}
			for _, rt := range c.Rates {
				id := rt.ID
				if id == "" {
					id = uuid.NewString()
				}
				if err := exec(ctx, tx, b.Insert(RatesTable.Name).
					Columns("id", "client_id", "rate_per_tonne", "effective_from", "effective_to", "approved", "approved_by").
					Values(id, c.ID, rt.PerTonne.String(), fmtDate(rt.EffectiveFrom), nullDate(rt.EffectiveTo), rt.Approved, rt.ApprovedBy)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("clients import failed", "count", len(clients), "err", err)
		return err
	}
	r.log.Info("clients imported", "count", len(clients))
	return nil
}

// List returns every client with its patterns and rates, ordered by name.
func (r *clientRepo) List(ctx context.Context) ([]entity.Client, error) {
	b := r.db.builder()
	var clients []entity.Client
	index := map[string]int{}

	err := queryRows(ctx, r.db.drv,
		b.Select("id", "name", "invoice_frequency", "credit_terms_days", "active").
			From(entsql.Table(ClientsTable.Name)).OrderBy("name"),
		func(rows *entsql.Rows) error {
			var c entity.Client
			if err := rows.Scan(&c.ID, &c.Name, &c.InvoiceFrequency, &c.CreditTermsDays, &c.Active); err != nil {
				return err
			}
			index[c.ID] = len(clients)
			clients = append(clients, c)
			return nil
		})
	if err != nil {
		r.log.Error("clients list failed", "err", err)
		return nil, err
	}

	err = queryRows(ctx, r.db.drv,
		b.Select("client_id", "pattern", "kind", "priority", "active").
			From(entsql.Table(ClientPatternsTable.Name)).OrderBy("client_id", "priority", "pattern"),
		func(rows *entsql.Rows) error {
			var (
				p    entity.ClientPattern
				kind string
			)
			if err := rows.Scan(&p.ClientID, &p.Pattern, &kind, &p.Priority, &p.Active); err != nil {
				return err
			}
			p.Kind = entity.PatternKind(kind)
			if i, ok := index[p.ClientID]; ok {
				clients[i].Patterns = append(clients[i].Patterns, p)
			}
			return nil
		})
	if err != nil {
		r.log.Error("client patterns list failed", "err", err)
		return nil, err
	}

	err = queryRows(ctx, r.db.drv,
		b.Select("id", "client_id", "rate_per_tonne", "effective_from", "effective_to", "approved", "approved_by").
			From(entsql.Table(RatesTable.Name)).OrderBy("client_id", "effective_from"),
		func(rows *entsql.Rows) error {
			var (
				rt       entity.Rate
				perTonne string
				from     string
				to       sql.NullString
			)
			if err := rows.Scan(&rt.ID, &rt.ClientID, &perTonne, &from, &to, &rt.Approved, &rt.ApprovedBy); err != nil {
				return err
			}
			var err error
			if rt.PerTonne, err = parseDecimal(perTonne); err != nil {
				return err
			}
			if rt.EffectiveFrom, err = parseDate(from); err != nil {
				return err
			}
			if rt.EffectiveTo, err = parseNullDate(to); err != nil {
				return err
			}
			if i, ok := index[rt.ClientID]; ok {
				clients[i].Rates = append(clients[i].Rates, rt)
			}
			return nil
		})
	if err != nil {
		r.log.Error("client rates list failed", "err", err)
		return nil, err
	}
	return clients, nil
}
