package export

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/audit"
	"github.com/joseph-ayodele/tickets-tracker/internal/bundle"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type env struct {
	svc     *Service
	root    string
	store   *storage.FSStore
	batches repository.BatchRepository
	tickets repository.TicketRepository
	matches repository.MatchRepository
	exports repository.ExportRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	log := slog.Default()
	db, err := repository.OpenSQLite(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared", log)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, log) })
	require.NoError(t, repository.Migrate(ctx, db, log))

	store, err := storage.NewFSStore(t.TempDir(), log)
	require.NoError(t, err)
	root := t.TempDir()
	asm, err := bundle.NewAssembler(root, store, log)
	require.NoError(t, err)
	rec, err := audit.NewRecorder(repository.NewAuditRepository(db, log), log)
	require.NoError(t, err)

	e := &env{
		root:    root,
		store:   store,
		batches: repository.NewBatchRepository(db, log),
		tickets: repository.NewTicketRepository(db, time.UTC, log),
		matches: repository.NewMatchRepository(db, log),
		exports: repository.NewExportRepository(db, log),
	}
	clients := repository.NewClientRepository(db, log)
	require.NoError(t, clients.Import(ctx, []entity.Client{{
		ID: "c-acme", Name: "Acme Hauling", Active: true,
		Patterns: []entity.ClientPattern{{Pattern: "T-100", Kind: entity.PatternExact, Active: true}},
		Rates: []entity.Rate{{PerTonne: decimal.RequireFromString("25.00"),
			EffectiveFrom: day("2024-01-01"), Approved: true}},
	}}))
	e.svc = NewService(Config{AdvisoryThreshold: 0.9, Zip: true}, e.tickets, e.matches, clients, e.exports, rec, asm, log)
	return e
}

func tk(num int64, ref, net, date string) entity.Ticket {
	return entity.Ticket{
		Number:    num,
		Status:    constants.TicketReprint,
		EntryAt:   day(date).Add(9 * time.Hour),
		Net:       decimal.RequireFromString(net),
		Reference: entity.ReferenceKey{Primary: ref},
	}
}

// seed stores one batch of tickets, each matched to its own page image.
func (e *env) seed(t *testing.T, tickets ...entity.Ticket) {
	t.Helper()
	ctx := context.Background()
	b := &entity.Batch{SheetPath: "week20.xlsx", PDFPath: "week20.pdf", SubmittedBy: "op1"}
	require.NoError(t, e.batches.Create(ctx, b))
	require.NoError(t, e.tickets.SaveAll(ctx, b.ID, tickets))
	var results []entity.MatchResult
	for i, tc := range tickets {
		key := storage.PageKey(b.ID.String(), i)
		require.NoError(t, e.store.Put(ctx, key, bytes.NewReader([]byte("png"))))
		results = append(results, entity.MatchResult{
			TicketNumber: tc.Number, PageIndex: i, ImageKey: key, Confidence: 0.95,
			Method: constants.MatchExactNumber, Disposition: constants.DispositionMatched,
		})
	}
	require.NoError(t, e.matches.SaveAll(ctx, b.ID, results))
	require.NoError(t, e.batches.SetStatus(ctx, b.ID, constants.BatchMatched))
}

func operator() context.Context {
	return common.WithIdentity(context.Background(), common.NewIdentity("op1", "operator"))
}

func week20(force bool) Request {
	return Request{From: day("2024-05-13"), To: day("2024-05-18"), Force: force, IncludeImages: true}
}

func TestExportClean(t *testing.T) {
	e := newEnv(t)
	e.seed(t, tk(4001, "T-100", "8.5", "2024-05-14"))
	ctx := operator()

	res, err := e.svc.Export(ctx, week20(false))
	require.NoError(t, err)
	assert.Equal(t, constants.ExportDownload, res.State)
	assert.True(t, res.Downloadable())
	assert.Equal(t, "212.50", res.TotalAmount.StringFixed(2))
	assert.True(t, res.Report.Empty())

	for _, f := range []string{bundle.LedgerCSV, bundle.LedgerXLSX, bundle.ZipFile, "tickets/T-100/4001.png"} {
		assert.FileExists(t, filepath.Join(res.BundlePath, f))
	}
	assert.NoFileExists(t, filepath.Join(res.BundlePath, bundle.AuditFile))

	path, err := e.svc.Download(ctx, res.ExportID)
	require.NoError(t, err)
	assert.Equal(t, res.BundlePath, path)

	hist, err := e.svc.History(ctx, res.ExportID)
	require.NoError(t, err)
	var states []constants.ExportState
	for _, h := range hist {
		states = append(states, h.To)
	}
	assert.Equal(t, []constants.ExportState{
		constants.ExportRequested, constants.ExportValidating, constants.ExportReadyClean,
		constants.ExportAssembled, constants.ExportDownload,
	}, states)

	entries, err := e.svc.Audit(ctx, repository.AuditFilter{ExportID: res.ExportID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, "op1", entries[0].UserID)
	assert.Equal(t, "212.50", entries[0].TotalAmount)

	// a second export of the same range supersedes the first
	again, err := e.svc.Export(ctx, week20(false))
	require.NoError(t, err)
	first, err := e.svc.Get(ctx, res.ExportID)
	require.NoError(t, err)
	require.NotNil(t, first.SupersededBy)
	assert.Equal(t, again.ExportID, *first.SupersededBy)
}

func TestExportUnresolvedTicket(t *testing.T) {
	e := newEnv(t)
	e.seed(t, tk(4001, "T-100", "8.5", "2024-05-14"), tk(4002, "UNKNOWN-9", "3", "2024-05-15"))
	ctx := operator()

	strict, err := e.svc.Export(ctx, week20(false))
	require.NoError(t, err)
	assert.Equal(t, constants.ExportRejected, strict.State)
	assert.Empty(t, strict.BundlePath)
	require.Len(t, strict.Report.Errors, 1)
	assert.Equal(t, constants.IssueUnresolved, strict.Report.Errors[0].Code)
	assert.Equal(t, int64(4002), strict.Report.Errors[0].Ticket)

	_, err = e.svc.Download(ctx, strict.ExportID)
	assert.True(t, errors.Is(err, common.ErrNotReady))

	forced, err := e.svc.Export(ctx, week20(true))
	require.NoError(t, err)
	assert.Equal(t, constants.ExportDownload, forced.State)
	assert.Equal(t, 1, forced.TicketCount)
	assert.Equal(t, "212.50", forced.TotalAmount.StringFixed(2))

	hist, err := e.svc.History(ctx, forced.ExportID)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	assert.Equal(t, constants.ExportReadyForced, hist[2].To)

	doc, err := os.ReadFile(filepath.Join(forced.BundlePath, bundle.AuditFile))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "4002")
	assert.Contains(t, string(doc), string(constants.IssueOmitted))

	ledger, err := os.ReadFile(filepath.Join(forced.BundlePath, bundle.LedgerCSV))
	require.NoError(t, err)
	assert.NotContains(t, string(ledger), "4002")

	entries, err := e.svc.Audit(ctx, repository.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	outcomes := map[uuid.UUID]constants.AuditOutcome{}
	for _, en := range entries {
		outcomes[en.ExportID] = en.Outcome
	}
	assert.Equal(t, constants.OutcomeFailure, outcomes[strict.ExportID])
	assert.Equal(t, constants.OutcomePartial, outcomes[forced.ExportID])
}

func TestValidateDoesNotCreateExports(t *testing.T) {
	e := newEnv(t)
	e.seed(t, tk(4002, "UNKNOWN-9", "3", "2024-05-15"))

	report, err := e.svc.Validate(operator(), week20(false))
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0].Message, string(constants.IssueNoClient)))

	entries, err := e.svc.Audit(context.Background(), repository.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = e.svc.Validate(operator(), Request{From: day("2024-05-18"), To: day("2024-05-13")})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestExportFailsWhenRangeStaysLocked(t *testing.T) {
	e := newEnv(t)
	e.seed(t, tk(4001, "T-100", "8.5", "2024-05-14"))

	release, err := e.svc.locks.Acquire(context.Background(), day("2024-05-15"), day("2024-05-15"))
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(operator(), 50*time.Millisecond)
	defer cancel()
	res, err := e.svc.Export(ctx, week20(false))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, constants.ExportFailed, res.State)

	entries, err := e.svc.Audit(context.Background(), repository.AuditFilter{ExportID: res.ExportID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.OutcomeFailure, entries[0].Outcome)
	assert.Equal(t, constants.IssueLockTimeout, entries[0].Report.Errors[0].Code)
}

func TestForcedExportWithBrokenTotalsFails(t *testing.T) {
	e := newEnv(t)
	e.seed(t, tk(4001, "T-100", "8.5", "2024-05-14"))
	e.svc.buildBundle = func(in bundle.Input, res bundle.Resolver, opts bundle.Options) entity.ExportBundle {
		b := bundle.Build(in, res, opts)
		b.Weeks[0].Total = b.Weeks[0].Total.Add(decimal.RequireFromString("0.01"))
		b.Report.AddError(constants.IssueWeekTotalMismatch, 0, "week total %s does not match its invoices", b.Weeks[0].Total)
		return b
	}

	res, err := e.svc.Export(operator(), week20(true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConsistency))
	require.NotNil(t, res)
	assert.Equal(t, constants.ExportFailed, res.State)
	assert.Empty(t, res.BundlePath)

	entries, err := os.ReadDir(e.root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	audits, err := e.svc.Audit(context.Background(), repository.AuditFilter{ExportID: res.ExportID})
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, constants.OutcomeFailure, audits[0].Outcome)
	assert.Equal(t, constants.ExportFailed, audits[0].State)
	assert.Equal(t, constants.IssueWeekTotalMismatch, audits[0].Report.Errors[0].Code)

	strict, err := e.svc.Export(operator(), week20(false))
	require.NoError(t, err)
	assert.Equal(t, constants.ExportRejected, strict.State)
}

func TestConcurrentExportsOfOneRangeAreSerialized(t *testing.T) {
	e := newEnv(t)
	e.seed(t, tk(4001, "T-100", "8.5", "2024-05-14"))

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.svc.Export(operator(), week20(false))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	paths := map[string]bool{}
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, constants.ExportDownload, r.State)
		paths[r.BundlePath] = true
	}
	assert.Len(t, paths, 3)
	assert.False(t, e.svc.locks.Held(day("2024-05-13"), day("2024-05-18")))
}

func TestRangeLock(t *testing.T) {
	l := NewRangeLock()
	release, err := l.Acquire(context.Background(), day("2024-05-13"), day("2024-05-25"))
	require.NoError(t, err)
	assert.True(t, l.Held(day("2024-05-21"), day("2024-05-21")))

	// a different week is free
	other, err := l.Acquire(context.Background(), day("2024-06-03"), day("2024-06-08"))
	require.NoError(t, err)
	other()

	got := make(chan struct{})
	go func() {
		r, err := l.Acquire(context.Background(), day("2024-05-20"), day("2024-05-20"))
		if err == nil {
			r()
		}
		close(got)
	}()
	select {
	case <-got:
		t.Fatal("overlapping range acquired while held")
	case <-time.After(30 * time.Millisecond):
	}
	release()
	release()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by release")
	}
	assert.False(t, l.Held(day("2024-05-13"), day("2024-05-25")))
}
