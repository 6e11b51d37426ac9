package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table definitions in the shape ent's migrate package expects. Dates are
// stored as YYYY-MM-DD text, instants as RFC 3339 text and money or weights
// as decimal strings so every dialect round-trips them exactly.
var (
	BatchesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "sheet_path", Type: field.TypeString, Size: 1024},
		{Name: "pdf_path", Type: field.TypeString, Size: 1024},
		{Name: "client_hint", Type: field.TypeString, Default: ""},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "submitted_by", Type: field.TypeString, Default: ""},
		{Name: "submitted_at", Type: field.TypeString, Size: 40},
		{Name: "finished_at", Type: field.TypeString, Size: 40, Nullable: true},
		{Name: "error", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "parse_report", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "extraction", Type: field.TypeString, Size: 2147483647, Nullable: true},
	}
	BatchesTable = &schema.Table{
		Name:       "batches",
		Columns:    BatchesColumns,
		PrimaryKey: []*schema.Column{BatchesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "batches_status", Columns: []*schema.Column{BatchesColumns[4]}},
		},
	}

	TicketsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "batch_id", Type: field.TypeString, Size: 36},
		{Name: "number", Type: field.TypeInt64},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "entry_date", Type: field.TypeString, Size: 10},
		{Name: "entry_at", Type: field.TypeString, Size: 40},
		{Name: "exit_at", Type: field.TypeString, Size: 40, Nullable: true},
		{Name: "gross", Type: field.TypeString, Size: 32},
		{Name: "tare", Type: field.TypeString, Size: 32},
		{Name: "net", Type: field.TypeString, Size: 32},
		{Name: "raw_reference", Type: field.TypeString, Default: ""},
		{Name: "reference", Type: field.TypeString, Default: ""},
		{Name: "reference_note", Type: field.TypeString, Default: ""},
		{Name: "material", Type: field.TypeString, Default: ""},
		{Name: "vehicle", Type: field.TypeString, Default: ""},
		{Name: "license", Type: field.TypeString, Default: ""},
		{Name: "attendant", Type: field.TypeString, Default: ""},
		{Name: "source_file", Type: field.TypeString, Size: 1024, Default: ""},
		{Name: "source_row", Type: field.TypeInt, Default: 0},
	}
	TicketsTable = &schema.Table{
		Name:       "tickets",
		Columns:    TicketsColumns,
		PrimaryKey: []*schema.Column{TicketsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "tickets_batches_tickets",
			Columns:    []*schema.Column{TicketsColumns[1]},
			RefColumns: []*schema.Column{BatchesColumns[0]},
			OnDelete:   schema.Cascade,
		}},
		Indexes: []*schema.Index{
			{Name: "tickets_batch_id_number", Unique: true, Columns: []*schema.Column{TicketsColumns[1], TicketsColumns[2]}},
			{Name: "tickets_number", Columns: []*schema.Column{TicketsColumns[2]}},
			{Name: "tickets_entry_date", Columns: []*schema.Column{TicketsColumns[4]}},
		},
	}

	MatchesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "batch_id", Type: field.TypeString, Size: 36},
		{Name: "ticket_number", Type: field.TypeInt64},
		{Name: "version", Type: field.TypeInt},
		{Name: "page_index", Type: field.TypeInt},
		{Name: "image_key", Type: field.TypeString, Default: ""},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "method", Type: field.TypeString, Size: 16},
		{Name: "disposition", Type: field.TypeString, Size: 16},
		{Name: "reviewed_by", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeString, Size: 40},
	}
	MatchesTable = &schema.Table{
		Name:       "match_results",
		Columns:    MatchesColumns,
		PrimaryKey: []*schema.Column{MatchesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "match_results_batches_matches",
			Columns:    []*schema.Column{MatchesColumns[1]},
			RefColumns: []*schema.Column{BatchesColumns[0]},
			OnDelete:   schema.Cascade,
		}},
		Indexes: []*schema.Index{
			{Name: "match_results_batch_ticket_version", Unique: true, Columns: []*schema.Column{MatchesColumns[1], MatchesColumns[2], MatchesColumns[3]}},
		},
	}

	ClientsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "name", Type: field.TypeString},
		{Name: "invoice_frequency", Type: field.TypeString, Default: "weekly"},
		{Name: "credit_terms_days", Type: field.TypeInt, Default: 30},
		{Name: "active", Type: field.TypeBool, Default: true},
	}
	ClientsTable = &schema.Table{
		Name:       "clients",
		Columns:    ClientsColumns,
		PrimaryKey: []*schema.Column{ClientsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "clients_name", Unique: true, Columns: []*schema.Column{ClientsColumns[1]}},
		},
	}

	ClientPatternsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "client_id", Type: field.TypeString, Size: 64},
		{Name: "pattern", Type: field.TypeString},
		{Name: "kind", Type: field.TypeString, Size: 16},
		{Name: "priority", Type: field.TypeInt, Default: 100},
		{Name: "active", Type: field.TypeBool, Default: true},
	}
	ClientPatternsTable = &schema.Table{
		Name:       "client_patterns",
		Columns:    ClientPatternsColumns,
		PrimaryKey: []*schema.Column{ClientPatternsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "client_patterns_clients_patterns",
			Columns:    []*schema.Column{ClientPatternsColumns[1]},
			RefColumns: []*schema.Column{ClientsColumns[0]},
			OnDelete:   schema.Cascade,
		}},
	}

	RatesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "client_id", Type: field.TypeString, Size: 64},
		{Name: "rate_per_tonne", Type: field.TypeString, Size: 32},
		{Name: "effective_from", Type: field.TypeString, Size: 10},
		{Name: "effective_to", Type: field.TypeString, Size: 10, Nullable: true},
		{Name: "approved", Type: field.TypeBool, Default: false},
		{Name: "approved_by", Type: field.TypeString, Default: ""},
	}
	RatesTable = &schema.Table{
		Name:       "rates",
		Columns:    RatesColumns,
		PrimaryKey: []*schema.Column{RatesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "rates_clients_rates",
			Columns:    []*schema.Column{RatesColumns[1]},
			RefColumns: []*schema.Column{ClientsColumns[0]},
			OnDelete:   schema.Cascade,
		}},
	}

	ExportsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "from_date", Type: field.TypeString, Size: 10},
		{Name: "to_date", Type: field.TypeString, Size: 10},
		{Name: "client_filter", Type: field.TypeString, Default: ""},
		{Name: "force", Type: field.TypeBool, Default: false},
		{Name: "include_images", Type: field.TypeBool, Default: false},
		{Name: "state", Type: field.TypeString, Size: 16},
		{Name: "bundle_path", Type: field.TypeString, Size: 1024, Default: ""},
		{Name: "requested_by", Type: field.TypeString, Default: ""},
		{Name: "report", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "created_at", Type: field.TypeString, Size: 40},
		{Name: "updated_at", Type: field.TypeString, Size: 40},
		{Name: "superseded_by", Type: field.TypeString, Size: 36, Nullable: true},
	}
	ExportsTable = &schema.Table{
		Name:       "exports",
		Columns:    ExportsColumns,
		PrimaryKey: []*schema.Column{ExportsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "exports_range", Columns: []*schema.Column{ExportsColumns[1], ExportsColumns[2]}},
		},
	}

	ExportTransitionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "export_id", Type: field.TypeString, Size: 36},
		{Name: "from_state", Type: field.TypeString, Size: 16, Default: ""},
		{Name: "to_state", Type: field.TypeString, Size: 16},
		{Name: "at", Type: field.TypeString, Size: 40},
	}
	ExportTransitionsTable = &schema.Table{
		Name:       "export_transitions",
		Columns:    ExportTransitionsColumns,
		PrimaryKey: []*schema.Column{ExportTransitionsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{{
			Symbol:     "export_transitions_exports_history",
			Columns:    []*schema.Column{ExportTransitionsColumns[1]},
			RefColumns: []*schema.Column{ExportsColumns[0]},
			OnDelete:   schema.Cascade,
		}},
		Indexes: []*schema.Index{
			{Name: "export_transitions_export_id", Columns: []*schema.Column{ExportTransitionsColumns[1]}},
		},
	}

	AuditEntriesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "export_id", Type: field.TypeString, Size: 36},
		{Name: "outcome", Type: field.TypeString, Size: 16},
		{Name: "state", Type: field.TypeString, Size: 16},
		{Name: "user_id", Type: field.TypeString, Default: ""},
		{Name: "role", Type: field.TypeString, Size: 16, Default: ""},
		{Name: "recorded_at", Type: field.TypeString, Size: 40},
		{Name: "from_date", Type: field.TypeString, Size: 10},
		{Name: "to_date", Type: field.TypeString, Size: 10},
		{Name: "force", Type: field.TypeBool, Default: false},
		{Name: "ticket_count", Type: field.TypeInt, Default: 0},
		{Name: "total_amount", Type: field.TypeString, Size: 32, Default: "0.00"},
		{Name: "bundle_path", Type: field.TypeString, Size: 1024, Default: ""},
		{Name: "report", Type: field.TypeString, Size: 2147483647},
	}
	AuditEntriesTable = &schema.Table{
		Name:       "audit_entries",
		Columns:    AuditEntriesColumns,
		PrimaryKey: []*schema.Column{AuditEntriesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "audit_entries_export_id", Columns: []*schema.Column{AuditEntriesColumns[1]}},
			{Name: "audit_entries_recorded_at", Columns: []*schema.Column{AuditEntriesColumns[6]}},
		},
	}

	Tables = []*schema.Table{
		BatchesTable,
		TicketsTable,
		MatchesTable,
		ClientsTable,
		ClientPatternsTable,
		RatesTable,
		ExportsTable,
		ExportTransitionsTable,
		AuditEntriesTable,
	}
)

func init() {
	TicketsTable.ForeignKeys[0].RefTable = BatchesTable
	MatchesTable.ForeignKeys[0].RefTable = BatchesTable
	ClientPatternsTable.ForeignKeys[0].RefTable = ClientsTable
	RatesTable.ForeignKeys[0].RefTable = ClientsTable
	ExportTransitionsTable.ForeignKeys[0].RefTable = ExportsTable
}

// Migrate creates or updates every table.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	m, err := schema.NewMigrate(db.drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema migrated", "tables", len(Tables))
	return nil
}
