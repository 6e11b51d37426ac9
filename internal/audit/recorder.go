// Package audit records every export attempt. Entries are validated against
// a JSON schema before they are appended and can never be changed.
package audit

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
)

//go:embed schema.json
var schemaJSON []byte

type Recorder struct {
	repo   repository.AuditRepository
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewRecorder(repo repository.AuditRepository, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Recorder{repo: repo, schema: schema, logger: logger}, nil
}

// Record validates and appends e. A failed attempt is still an attempt: the
// caller records it with outcome failure and the report explaining why.
func (r *Recorder) Record(ctx context.Context, e *entity.AuditEntry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if err := r.Validate(e); err != nil {
		r.logger.Error("audit.record.invalid", "export_id", e.ExportID, "error", err)
		return err
	}
	return r.repo.Append(ctx, e)
}

// Validate checks e against the audit entry schema.
func (r *Recorder) Validate(e *entity.AuditEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal audit entry: %w", err)
	}
	if err := r.schema.Validate(v); err != nil {
		return common.NewAppError("AUDIT_INVALID", "audit entry does not match schema", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	return nil
}

func (r *Recorder) List(ctx context.Context, f repository.AuditFilter) ([]entity.AuditEntry, error) {
	return r.repo.List(ctx, f)
}
