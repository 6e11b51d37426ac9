// Package export drives an export request through validation, assembly and
// audit. Work on overlapping weeks is serialized by a RangeLock.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tickets-tracker/internal/audit"
	"github.com/joseph-ayodele/tickets-tracker/internal/bundle"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
	"github.com/joseph-ayodele/tickets-tracker/internal/resolver"
)

type Config struct {
	ImagePolicy       constants.ImagePolicy
	AdvisoryThreshold float64
	Location          *time.Location
	Zip               bool
}

// Request is one request-validation or request-export call. From and To are
// inclusive calendar days.
type Request struct {
	From          time.Time
	To            time.Time
	Client        string
	Force         bool
	IncludeImages bool
}

// Result is what an export attempt ended with. A rejection is a Result with
// state REJECTED and the report that explains it, not an error.
type Result struct {
	ExportID    uuid.UUID
	State       constants.ExportState
	BundlePath  string
	Report      entity.Report
	TicketCount int
	TotalAmount decimal.Decimal
}

// Downloadable reports whether the bundle can be handed out.
func (r Result) Downloadable() bool { return r.State == constants.ExportDownload }

type Service struct {
	cfg       Config
	tickets   repository.TicketRepository
	matches   repository.MatchRepository
	clients   repository.ClientRepository
	exports   repository.ExportRepository
	recorder  *audit.Recorder
	assembler *bundle.Assembler
	locks     *RangeLock
	logger    *slog.Logger

	buildBundle func(bundle.Input, bundle.Resolver, bundle.Options) entity.ExportBundle
}

func NewService(
	cfg Config,
	tickets repository.TicketRepository,
	matches repository.MatchRepository,
	clients repository.ClientRepository,
	exports repository.ExportRepository,
	recorder *audit.Recorder,
	assembler *bundle.Assembler,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ImagePolicy == "" {
		cfg.ImagePolicy = constants.ImagePolicyWarn
	}
	return &Service{
		cfg:       cfg,
		tickets:   tickets,
		matches:   matches,
		clients:   clients,
		exports:   exports,
		recorder:  recorder,
		assembler: assembler,
		locks:     NewRangeLock(),
		logger:    logger,

		buildBundle: bundle.Build,
	}
}

func checkRequest(req Request) error {
	if req.From.IsZero() || req.To.IsZero() {
		return common.NewAppError("BAD_RANGE", "from and to are required", common.ErrInvalidInput)
	}
	if aggregate.Date(req.To).Before(aggregate.Date(req.From)) {
		return common.NewAppError("BAD_RANGE",
			fmt.Sprintf("range ends %s before it starts %s", req.To.Format(time.DateOnly), req.From.Format(time.DateOnly)),
			common.ErrInvalidInput)
	}
	return nil
}

// Validate reports what an export of the range would contain, without
// creating an export or touching the range lock.
func (s *Service) Validate(ctx context.Context, req Request) (entity.Report, error) {
	if err := checkRequest(req); err != nil {
		return entity.Report{}, err
	}
	b, err := s.build(ctx, uuid.New(), req)
	if err != nil {
		return entity.Report{}, err
	}
	s.logger.Info("export.validate.ok",
		"from", req.From.Format(time.DateOnly),
		"to", req.To.Format(time.DateOnly),
		"client", req.Client,
		"errors", len(b.Report.Errors),
		"warnings", len(b.Report.Warnings),
	)
	return b.Report, nil
}

func (s *Service) build(ctx context.Context, id uuid.UUID, req Request) (entity.ExportBundle, error) {
	from, to := aggregate.Date(req.From), aggregate.Date(req.To)
	tickets, err := s.tickets.ListInRange(ctx, from, to)
	if err != nil {
		return entity.ExportBundle{}, fmt.Errorf("load tickets: %w", err)
	}
	clients, err := s.clients.List(ctx)
	if err != nil {
		return entity.ExportBundle{}, fmt.Errorf("load clients: %w", err)
	}

	seen := map[uuid.UUID]bool{}
	var batchIDs []uuid.UUID
	for _, t := range tickets {
		if !seen[t.BatchID] {
			seen[t.BatchID] = true
			batchIDs = append(batchIDs, t.BatchID)
		}
	}
	latest, err := s.matches.Latest(ctx, batchIDs...)
	if err != nil {
		return entity.ExportBundle{}, fmt.Errorf("load matches: %w", err)
	}
	matches := make(map[int64]entity.MatchResult, len(latest))
	for _, m := range latest {
		matches[m.TicketNumber] = m
	}

	in := bundle.Input{ID: id, From: from, To: to, Client: req.Client, Tickets: tickets, Matches: matches}
	opts := bundle.Options{
		Force:             req.Force,
		ImagePolicy:       s.cfg.ImagePolicy,
		AdvisoryThreshold: s.cfg.AdvisoryThreshold,
		Location:          s.cfg.Location,
	}
	return s.buildBundle(in, resolver.New(clients, s.logger), opts), nil
}

// Export runs one export attempt to a terminal state and audits it. The
// returned error is set only when the attempt FAILED; the Result is non-nil
// whenever an export record was created.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	start := time.Now()
	who := common.IdentityFromContext(ctx)
	rec := &entity.ExportRecord{
		From:          aggregate.Date(req.From),
		To:            aggregate.Date(req.To),
		ClientFilter:  req.Client,
		Force:         req.Force,
		IncludeImages: req.IncludeImages,
		RequestedBy:   who.UserID,
	}
	if err := s.exports.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create export: %w", err)
	}
	at := attempt{s: s, rec: rec, who: who, res: &Result{ExportID: rec.ID, State: constants.ExportRequested}}

	release, err := s.locks.Acquire(ctx, rec.From, rec.To)
	if err != nil {
		at.res.Report.AddError(constants.IssueLockTimeout, 0, "waiting for another export of these weeks: %v", err)
		return at.fail(ctx, err)
	}
	defer release()

	if err := at.move(ctx, constants.ExportValidating, repository.ExportUpdate{}); err != nil {
		return at.fail(ctx, err)
	}
	b, err := s.build(ctx, rec.ID, req)
	if err != nil {
		return at.fail(ctx, err)
	}
	at.res.Report = b.Report
	at.res.TicketCount = len(b.Ledger)
	at.res.TotalAmount = bundle.GrandTotal(b)

	switch {
	case b.Report.HasConsistencyErrors() && req.Force:
		return at.fail(ctx, common.NewAppError("CONSISTENCY", "aggregated totals do not add up", common.ErrConsistency))
	case b.Report.HasErrors():
		if err := at.move(ctx, constants.ExportRejected, repository.ExportUpdate{Report: &b.Report}); err != nil {
			return at.fail(ctx, err)
		}
		s.logger.Warn("export.rejected", "export_id", rec.ID, "errors", len(b.Report.Errors))
		return at.finish(ctx)
	}

	ready := constants.ExportReadyClean
	if s.forcedThrough(b.Report) {
		ready = constants.ExportReadyForced
	}
	if err := at.move(ctx, ready, repository.ExportUpdate{Report: &b.Report}); err != nil {
		return at.fail(ctx, err)
	}

	// assembly runs to completion once started
	actx := context.WithoutCancel(ctx)
	path, err := s.assembler.Assemble(actx, b, bundle.AssembleOptions{IncludeImages: req.IncludeImages, Zip: s.cfg.Zip})
	if err != nil {
		return at.fail(actx, err)
	}
	at.res.BundlePath = path
	if err := at.move(actx, constants.ExportAssembled, repository.ExportUpdate{BundlePath: &path}); err != nil {
		return at.fail(actx, err)
	}
	if err := at.move(actx, constants.ExportDownload, repository.ExportUpdate{}); err != nil {
		return at.fail(actx, err)
	}
	if _, err := s.exports.Supersede(actx, rec.ID, rec.From, rec.To); err != nil {
		s.logger.Warn("export supersede failed", "export_id", rec.ID, "error", err)
	}

	s.logger.Info("export.ok",
		"export_id", rec.ID,
		"state", at.res.State,
		"tickets", at.res.TicketCount,
		"total", at.res.TotalAmount.StringFixed(aggregate.MoneyPlaces),
		"warnings", len(b.Report.Warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return at.finish(actx)
}

// forcedThrough reports whether a forced export let blocking findings pass.
func (s *Service) forcedThrough(r entity.Report) bool {
	for _, w := range r.Warnings {
		switch w.Code {
		case constants.IssueOmitted, constants.IssueDuplicateTicket, constants.IssueUnresolved:
			return true
		case constants.IssueMissingImage:
			if s.cfg.ImagePolicy == constants.ImagePolicyBlock {
				return true
			}
		}
	}
	return false
}

// Get returns the registry entry of an export.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.ExportRecord, error) {
	return s.exports.Get(ctx, id)
}

// History returns the recorded state transitions of an export.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]repository.ExportTransition, error) {
	return s.exports.History(ctx, id)
}

// Download returns the bundle location of a DOWNLOADABLE export.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.exports.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.State != constants.ExportDownload || rec.BundlePath == "" {
		return "", common.NewAppError("NOT_DOWNLOADABLE", fmt.Sprintf("export %s is %s", id, rec.State), common.ErrNotReady)
	}
	return rec.BundlePath, nil
}

// Audit lists recorded export attempts.
func (s *Service) Audit(ctx context.Context, f repository.AuditFilter) ([]entity.AuditEntry, error) {
	return s.recorder.List(ctx, f)
}

// attempt tracks one export request through its transitions.
type attempt struct {
	s   *Service
	rec *entity.ExportRecord
	who common.Identity
	res *Result
}

func (a *attempt) move(ctx context.Context, to constants.ExportState, upd repository.ExportUpdate) error {
	if err := a.s.exports.Transition(ctx, a.rec.ID, a.res.State, to, upd); err != nil {
		return err
	}
	a.s.logger.Debug("export.state", "export_id", a.rec.ID, "from", a.res.State, "to", to)
	a.res.State = to
	return nil
}

// fail moves the export to FAILED and audits it. cause is returned to the caller.
func (a *attempt) fail(ctx context.Context, cause error) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	if !a.res.Report.HasErrors() {
		a.res.Report.AddError(constants.IssueExportFailed, 0, "%v", cause)
	}
	a.res.BundlePath = ""
	if !a.res.State.Terminal() {
		if err := a.move(ctx, constants.ExportFailed, repository.ExportUpdate{Report: &a.res.Report}); err != nil {
			a.s.logger.Error("export could not be marked failed", "export_id", a.rec.ID, "error", err)
		}
	}
	a.s.logger.Error("export.failed", "export_id", a.rec.ID, "state", a.res.State, "error", cause)
	if _, err := a.finish(ctx); err != nil {
		return a.res, errors.Join(cause, err)
	}
	return a.res, cause
}

// finish appends the audit entry for the attempt.
func (a *attempt) finish(ctx context.Context) (*Result, error) {
	outcome := constants.OutcomeSuccess
	switch {
	case a.res.State != constants.ExportDownload:
		outcome = constants.OutcomeFailure
	case !a.res.Report.Empty():
		outcome = constants.OutcomePartial
	}
	e := &entity.AuditEntry{
		ExportID:    a.rec.ID,
		Outcome:     outcome,
		State:       a.res.State,
		UserID:      a.who.UserID,
		Role:        string(a.who.Role),
		From:        a.rec.From,
		To:          a.rec.To,
		Force:       a.rec.Force,
		TicketCount: a.res.TicketCount,
		TotalAmount: a.res.TotalAmount.StringFixed(aggregate.MoneyPlaces),
		BundlePath:  a.res.BundlePath,
		Report:      a.res.Report,
	}
	if err := a.s.recorder.Record(ctx, e); err != nil {
		return a.res, fmt.Errorf("record audit: %w", err)
	}
	return a.res, nil
}
