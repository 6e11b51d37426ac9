package bundle

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/resolver"
	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ticket(num int64, ref, net, date string) entity.Ticket {
	return entity.Ticket{
		Number:    num,
		Status:    constants.TicketReprint,
		EntryAt:   day(date).Add(9 * time.Hour),
		Net:       decimal.RequireFromString(net),
		Reference: entity.ReferenceKey{Primary: ref},
	}
}

func testResolver() *resolver.Resolver {
	return resolver.New([]entity.Client{{
		ID: "c-acme", Name: "Acme Hauling", Active: true,
		Patterns: []entity.ClientPattern{{Pattern: "#007", Kind: entity.PatternExact, Active: true}},
		Rates: []entity.Rate{{ID: "r1", PerTonne: decimal.RequireFromString("25.00"),
			EffectiveFrom: day("2024-01-01"), Approved: true}},
	}}, nil)
}

func matched(num int64, page int) entity.MatchResult {
	return entity.MatchResult{
		TicketNumber: num, PageIndex: page, ImageKey: storage.PageKey("doc", page),
		Confidence: 0.95, Method: constants.MatchExactNumber, Disposition: constants.DispositionMatched,
	}
}

func opts(force bool) Options {
	return Options{Force: force, AdvisoryThreshold: 0.9}
}

func TestBuildClean(t *testing.T) {
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "10", "2024-05-14"), ticket(2, "#007", "17", "2024-05-15")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0), 2: matched(2, 1)},
	}
	b := Build(in, testResolver(), opts(false))
	assert.True(t, b.Report.Empty(), "%+v", b.Report)
	require.Len(t, b.Weeks, 1)
	assert.Equal(t, "675.00", b.Weeks[0].Total.StringFixed(2))
	require.Len(t, b.Ledger, 2)
	assert.Equal(t, storage.PageKey("doc", 0), b.Ledger[0].ImageKey)
}

func TestBuildSkipsOutOfRangeAndNonBillable(t *testing.T) {
	orig := ticket(3, "#007", "5", "2024-05-14")
	orig.Status = constants.TicketOriginal
	voided := ticket(4, "#007", "5", "2024-05-14")
	voided.Status = constants.TicketReprintVoid
	in := Input{
		From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{
			ticket(1, "#007", "10", "2024-05-20"),
			ticket(2, "#007", "0", "2024-05-14"),
			orig, voided,
		},
	}
	b := Build(in, testResolver(), opts(false))
	assert.Empty(t, b.Weeks)
	assert.Empty(t, b.Ledger)
	require.Len(t, b.Report.Warnings, 1)
	assert.Equal(t, constants.IssueNonPositiveNet, b.Report.Warnings[0].Code)
	assert.False(t, b.Report.HasErrors())
}

func TestBuildUnresolvedReferenceBlocksUnlessForced(t *testing.T) {
	in := Input{
		From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "8.5", "2024-05-14"), ticket(2, "#404", "3", "2024-05-14")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0), 2: matched(2, 1)},
	}

	strict := Build(in, testResolver(), opts(false))
	require.Len(t, strict.Report.Errors, 1)
	assert.Equal(t, constants.IssueUnresolved, strict.Report.Errors[0].Code)
	assert.Equal(t, int64(2), strict.Report.Errors[0].Ticket)
	assert.Contains(t, strict.Report.Errors[0].Message, "NO_CLIENT")

	forced := Build(in, testResolver(), opts(true))
	assert.False(t, forced.Report.HasErrors())
	require.Len(t, forced.Ledger, 1)
	assert.Equal(t, int64(1), forced.Ledger[0].TicketNumber)
	assert.Equal(t, "212.50", forced.Weeks[0].Total.StringFixed(2))

	codes := map[constants.IssueCode]int64{}
	for _, w := range forced.Report.Warnings {
		codes[w.Code] = w.Ticket
	}
	assert.Equal(t, int64(2), codes[constants.IssueUnresolved])
	assert.Equal(t, int64(2), codes[constants.IssueOmitted])
}

func TestBuildDuplicates(t *testing.T) {
	in := Input{
		From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{
			ticket(5, "#007", "1", "2024-05-14"),
			ticket(5, "#007", "2", "2024-05-15"),
			ticket(6, "#007", "1", "2024-05-15"),
		},
	}
	strict := Build(in, testResolver(), Options{ImagePolicy: constants.ImagePolicyWarn})
	require.Len(t, strict.Report.Errors, 1)
	assert.Equal(t, constants.IssueDuplicateTicket, strict.Report.Errors[0].Code)

	forced := Build(in, testResolver(), opts(true))
	require.Len(t, forced.Ledger, 1)
	assert.Equal(t, int64(6), forced.Ledger[0].TicketNumber)
}

func TestBuildImageFindings(t *testing.T) {
	low := matched(2, 1)
	low.Confidence = 0.6
	in := Input{
		From: day("2024-05-13"), To: day("2024-05-19"),
		Tickets: []entity.Ticket{ticket(1, "#007", "1", "2024-05-14"), ticket(2, "#007", "1", "2024-05-14"), ticket(3, "#007", "1", "2024-05-19")},
		Matches: map[int64]entity.MatchResult{2: low},
	}
	b := Build(in, testResolver(), opts(false))
	assert.False(t, b.Report.HasErrors())
	codes := map[constants.IssueCode]int64{}
	for _, w := range b.Report.Warnings {
		codes[w.Code] = w.Ticket
	}
	assert.Equal(t, int64(1), codes[constants.IssueMissingImage])
	assert.Equal(t, int64(2), codes[constants.IssueLowConfidence])
	assert.Equal(t, int64(3), codes[constants.IssueSundayEntry])

	blocking := Build(in, testResolver(), Options{ImagePolicy: constants.ImagePolicyBlock, AdvisoryThreshold: 0.9})
	require.Len(t, blocking.Report.Errors, 1)
	assert.Equal(t, constants.IssueMissingImage, blocking.Report.Errors[0].Code)
}

func TestBuildForcedBlockPolicyOmitsImagelessTickets(t *testing.T) {
	in := Input{
		From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "8.5", "2024-05-14"), ticket(2, "#007", "2", "2024-05-14")},
		Matches: map[int64]entity.MatchResult{2: matched(2, 0)},
	}
	b := Build(in, testResolver(), Options{Force: true, ImagePolicy: constants.ImagePolicyBlock, AdvisoryThreshold: 0.9})
	assert.False(t, b.Report.HasErrors())
	require.Len(t, b.Ledger, 1)
	assert.Equal(t, int64(2), b.Ledger[0].TicketNumber)
	assert.Equal(t, "50.00", b.Weeks[0].Total.StringFixed(2))

	codes := map[constants.IssueCode]int64{}
	for _, w := range b.Report.Warnings {
		codes[w.Code] = w.Ticket
	}
	assert.Equal(t, int64(1), codes[constants.IssueMissingImage])
	assert.Equal(t, int64(1), codes[constants.IssueOmitted])
}

func TestBuildClientFilter(t *testing.T) {
	in := Input{
		From: day("2024-05-13"), To: day("2024-05-18"), Client: "someone-else",
		Tickets: []entity.Ticket{ticket(1, "#007", "1", "2024-05-14")},
	}
	b := Build(in, testResolver(), opts(false))
	assert.Empty(t, b.Ledger)
}

func newAssembler(t *testing.T) (*Assembler, string) {
	t.Helper()
	store, err := storage.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	for page := 0; page < 2; page++ {
		require.NoError(t, store.Put(context.Background(), storage.PageKey("doc", page), strings.NewReader("png")))
	}
	root := t.TempDir()
	a, err := NewAssembler(root, store, nil)
	require.NoError(t, err)
	return a, root
}

func TestAssembleWritesBundle(t *testing.T) {
	a, root := newAssembler(t)
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "10", "2024-05-14"), ticket(2, "#007", "17", "2024-05-15"), ticket(3, "#404", "1", "2024-05-15")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0), 2: matched(2, 1)},
	}
	b := Build(in, testResolver(), opts(true))
	require.False(t, b.Report.HasErrors())

	dir, err := a.Assemble(context.Background(), b, AssembleOptions{IncludeImages: true, Zip: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DirName(b)), dir)

	for _, rel := range []string{
		LedgerCSV, LedgerXLSX, AuditFile, ZipFile,
		"week_2024-05-13/manifest.csv",
		"week_2024-05-13/client_Acme Hauling_c-acme/invoice.csv",
		"week_2024-05-13/client_Acme Hauling_c-acme/images/#007/1.png",
		"week_2024-05-13/client_Acme Hauling_c-acme/images/#007/2.png",
	} {
		assert.FileExists(t, filepath.Join(dir, rel))
	}

	invoice, err := os.ReadFile(filepath.Join(dir, "week_2024-05-13/client_Acme Hauling_c-acme/invoice.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(invoice), "#007,25.00,2,27.00,675.00,1 2")
	assert.Contains(t, string(invoice), "SUBTOTAL,,2,27.00,675.00,")

	raw, err := os.ReadFile(filepath.Join(dir, AuditFile))
	require.NoError(t, err)
	var doc auditDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "675.00", doc.Totals["grand_total"])
	require.NotEmpty(t, doc.Report.Warnings)

	zr, err := zip.OpenReader(filepath.Join(dir, ZipFile))
	require.NoError(t, err)
	defer zr.Close()
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["ledger.csv"])
	assert.True(t, names["week_2024-05-13/client_Acme Hauling_c-acme/images/#007/1.png"])

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp dir must be gone")

	_, err = a.Assemble(context.Background(), b, AssembleOptions{})
	require.Error(t, err)
}

func TestAssembleCleanBundleHasNoAudit(t *testing.T) {
	a, _ := newAssembler(t)
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "8.5", "2024-05-14")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0)},
	}
	b := Build(in, testResolver(), opts(false))
	require.True(t, b.Report.Empty())

	dir, err := a.Assemble(context.Background(), b, AssembleOptions{})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, AuditFile))
	assert.NoFileExists(t, filepath.Join(dir, ZipFile))
	assert.NoDirExists(t, filepath.Join(dir, "week_2024-05-13", ClientDir("c-acme", "Acme Hauling"), "images"))
}

func TestAssembleMissingImageFailsAtomically(t *testing.T) {
	a, root := newAssembler(t)
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "8.5", "2024-05-14")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 7)},
	}
	b := Build(in, testResolver(), opts(false))

	_, err := a.Assemble(context.Background(), b, AssembleOptions{IncludeImages: true})
	require.Error(t, err)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVerifyDetectsTampering(t *testing.T) {
	a, _ := newAssembler(t)
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#007", "8.5", "2024-05-14")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0)},
	}
	b := Build(in, testResolver(), opts(false))
	dir, err := a.Assemble(context.Background(), b, AssembleOptions{})
	require.NoError(t, err)

	files := []string{LedgerCSV, LedgerXLSX}
	require.NoError(t, Verify(dir, b, files))

	b.Weeks[0].Total = decimal.RequireFromString("1")
	assert.Error(t, Verify(dir, b, files))
	assert.Error(t, Verify(dir, b, append(files, "nope.csv")))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "A_B_C_D", Sanitize(`A/B\C:D`))
	assert.Equal(t, "#007", Sanitize("#007"))
	assert.Equal(t, "unnamed", Sanitize("  "))
	assert.Len(t, []rune(Sanitize(strings.Repeat("x", 80))), 50)
}

func TestAssembleIsRepeatable(t *testing.T) {
	a, _ := newAssembler(t)
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-25"),
		Tickets: []entity.Ticket{
			ticket(3, "#007", "4.25", "2024-05-21"),
			ticket(1, "#007", "10", "2024-05-14"),
			ticket(2, "#007", "17.333", "2024-05-15"),
		},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0), 2: matched(2, 1), 3: matched(3, 0)},
	}

	first := Build(in, testResolver(), opts(false))
	in.ID = uuid.New()
	second := Build(in, testResolver(), opts(false))
	require.True(t, first.Report.Empty())
	assert.Equal(t, GrandTotal(first).String(), GrandTotal(second).String())
	require.Len(t, second.Weeks, 2)
	for i := range first.Weeks {
		assert.Equal(t, first.Weeks[i].Total.String(), second.Weeks[i].Total.String())
	}

	dir1, err := a.Assemble(context.Background(), first, AssembleOptions{IncludeImages: true})
	require.NoError(t, err)
	dir2, err := a.Assemble(context.Background(), second, AssembleOptions{IncludeImages: true})
	require.NoError(t, err)

	for _, rel := range []string{
		LedgerCSV,
		"week_2024-05-13/manifest.csv",
		"week_2024-05-20/client_Acme Hauling_c-acme/invoice.csv",
	} {
		want, err := os.ReadFile(filepath.Join(dir1, rel))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dir2, rel))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), rel)
	}
}

func TestAssembleKeepsLookalikeClientsApart(t *testing.T) {
	a, _ := newAssembler(t)
	res := resolver.New([]entity.Client{
		{ID: "c-1", Name: "A/B", Active: true,
			Patterns: []entity.ClientPattern{{Pattern: "#001", Kind: entity.PatternExact, Active: true}},
			Rates:    []entity.Rate{{ID: "r1", PerTonne: decimal.RequireFromString("10"), EffectiveFrom: day("2024-01-01"), Approved: true}}},
		{ID: "c-2", Name: "A_B", Active: true,
			Patterns: []entity.ClientPattern{{Pattern: "#002", Kind: entity.PatternExact, Active: true}},
			Rates:    []entity.Rate{{ID: "r2", PerTonne: decimal.RequireFromString("20"), EffectiveFrom: day("2024-01-01"), Approved: true}}},
	}, nil)
	in := Input{
		ID: uuid.New(), From: day("2024-05-13"), To: day("2024-05-18"),
		Tickets: []entity.Ticket{ticket(1, "#001", "1", "2024-05-14"), ticket(2, "#002", "1", "2024-05-14")},
		Matches: map[int64]entity.MatchResult{1: matched(1, 0), 2: matched(2, 1)},
	}
	b := Build(in, res, opts(false))
	require.True(t, b.Report.Empty(), "%+v", b.Report)

	dir, err := a.Assemble(context.Background(), b, AssembleOptions{IncludeImages: true})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "week_2024-05-13", ClientDir("c-1", "A/B"), "invoice.csv"))
	assert.FileExists(t, filepath.Join(dir, "week_2024-05-13", ClientDir("c-2", "A_B"), "invoice.csv"))
	assert.NotEqual(t, ClientDir("c-1", "A/B"), ClientDir("c-2", "A_B"))
}
