package ocr

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/internal/storage"
)

const tsvHeader = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"

func tsvWords(words ...string) string {
	var b strings.Builder
	b.WriteString(tsvHeader)
	b.WriteString("1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n")
	for i, w := range words {
		b.WriteString("5\t1\t1\t1\t1\t")
		b.WriteString(string(rune('1' + i)))
		b.WriteString("\t0\t0\t10\t10\t80\t")
		b.WriteString(w)
		b.WriteString("\n")
	}
	return b.String()
}

// fakeRunner imitates pdftoppm and tesseract. Pages listed in fail return an
// error from tesseract; pages listed in hang block until the context ends.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	text  map[string]string // "page-001" -> tsv
	fail  map[string]bool
	hang  map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()

	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		return nil, nil, os.WriteFile(prefix+".png", []byte("png:"+prefix), 0o644)
	case "tesseract":
		png := args[0]
		for page := range f.hang {
			if strings.Contains(png, page) {
				<-ctx.Done()
				return nil, nil, ctx.Err()
			}
		}
		for page := range f.fail {
			if strings.Contains(png, page) {
				return nil, []byte("boom"), errors.New("exit status 1")
			}
		}
		for page, tsv := range f.text {
			if strings.Contains(png, page) {
				return []byte(tsv), nil, nil
			}
		}
		return []byte(tsvHeader), nil, nil
	}
	return nil, nil, errors.New("unexpected command " + name)
}

func newTestExtractor(t *testing.T, pages int, r Runner) (*Extractor, *storage.FSStore) {
	t.Helper()
	store, err := storage.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	e := NewExtractor(Config{Workers: 2, PageTimeout: 100 * time.Millisecond}, store, nil).WithRunner(r)
	e.pageCount = func(string) (int, error) { return pages, nil }
	e.textLayer = func(string, int) string { return "" }
	return e, store
}

func TestExtractRecognizesEveryPage(t *testing.T) {
	r := &fakeRunner{text: map[string]string{
		"page-001": tsvWords("TICKET", "104233"),
		"page-002": tsvWords("TICKET", "104234"),
	}}
	e, store := newTestExtractor(t, 2, r)

	res, err := e.Extract(context.Background(), "doc1", "/in/tickets.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	require.Len(t, res.Images, 2)
	assert.Empty(t, res.Failures)

	assert.Equal(t, 0, res.Images[0].PageIndex)
	assert.Equal(t, "104233", res.Images[0].DetectedNumber)
	assert.Equal(t, "TICKET 104233", res.Images[0].Text)
	assert.InDelta(t, 0.7*0.8+0.3*0.95, res.Images[0].Confidence, 1e-9)
	assert.Equal(t, "pages/doc1/page-001.png", res.Images[0].ArtifactKey)
	assert.True(t, store.Exists(context.Background(), res.Images[0].ArtifactKey))

	assert.Equal(t, 1, res.Images[1].PageIndex)
	assert.Equal(t, "104234", res.Images[1].DetectedNumber)
}

func TestExtractPageFailuresDoNotAbort(t *testing.T) {
	r := &fakeRunner{
		text: map[string]string{"page-001": tsvWords("TICKET", "5001")},
		fail: map[string]bool{"page-002": true},
		hang: map[string]bool{"page-003": true},
	}
	e, _ := newTestExtractor(t, 3, r)

	res, err := e.Extract(context.Background(), "doc2", "/in/tickets.pdf")
	require.NoError(t, err)

	require.Len(t, res.Images, 1)
	assert.Equal(t, "5001", res.Images[0].DetectedNumber)

	require.Len(t, res.Failures, 2)
	assert.Equal(t, 1, res.Failures[0].PageIndex)
	assert.False(t, res.Failures[0].TimedOut)
	assert.Contains(t, res.Failures[0].Reason, "tesseract")
	assert.Equal(t, 2, res.Failures[1].PageIndex)
	assert.True(t, res.Failures[1].TimedOut)
}

func TestExtractHonorsMaxPages(t *testing.T) {
	r := &fakeRunner{}
	store, err := storage.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	e := NewExtractor(Config{MaxPages: 1}, store, nil).WithRunner(r)
	e.pageCount = func(string) (int, error) { return 5, nil }
	e.textLayer = func(string, int) string { return "" }

	res, err := e.Extract(context.Background(), "doc3", "/in/tickets.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	require.Len(t, res.Images, 1)
	assert.Empty(t, res.Images[0].DetectedNumber)
}

func TestExtractUnreadablePDF(t *testing.T) {
	e, _ := newTestExtractor(t, 0, &fakeRunner{})
	e.pageCount = func(string) (int, error) { return 0, errors.New("not a pdf") }

	_, err := e.Extract(context.Background(), "doc4", "/in/broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a pdf")
}

func TestExtractUsesTextLayer(t *testing.T) {
	e, _ := newTestExtractor(t, 1, &fakeRunner{})
	e.textLayer = func(string, int) string { return "Ticket No: 77881" }

	res, err := e.Extract(context.Background(), "doc5", "/in/tickets.pdf")
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "77881", res.Images[0].DetectedNumber)
}

func TestRasterizeArgs(t *testing.T) {
	r := &fakeRunner{}
	e, _ := newTestExtractor(t, 1, r)
	_, err := e.rasterize(context.Background(), "/in/t.pdf", t.TempDir(), 4)
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Contains(t, r.calls[0], "pdftoppm -r 300 -png -f 5 -l 5 -singlefile /in/t.pdf")
}

func TestParseTSV(t *testing.T) {
	tsv := tsvHeader +
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t0\t0\t1\t1\t90\tTICKET\n" +
		"5\t1\t1\t1\t1\t2\t0\t0\t1\t1\t80\t104233\n" +
		"5\t1\t1\t1\t2\t1\t0\t0\t1\t1\t70\tNET\n"
	text, conf := parseTSV(tsv)
	assert.Equal(t, "TICKET 104233\nNET", text)
	assert.InDelta(t, 0.8, conf, 1e-9)

	text, conf = parseTSV("garbage")
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestDetectTicketNumber(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		want  string
		score float64
	}{
		{"labelled", "SCALE TICKET NO: 104233\nGROSS 32000", "104233", 0.95},
		{"hash label", "Weigh # 88123", "88123", 0.95},
		{"letter prefix", "Weighmaster A12345 2024", "12345", 0.8},
		{"year only", "19-05-2024 only", "", 0},
		{"empty", "  ", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, score := DetectTicketNumber(tc.text)
			assert.Equal(t, tc.want, got)
			assert.InDelta(t, tc.score, score, 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b\n\nc", Normalize("a\t\tb  \r\n\n\n\nc  "))
	assert.Equal(t, "", Normalize(""))
}

func TestBlendConfidence(t *testing.T) {
	assert.InDelta(t, 0.7*0.9+0.3*0.8, blendConfidence(0.9, 0.8, "x"), 1e-9)
	assert.InDelta(t, 0.3*0.9, blendConfidence(0.9, 0, "abc"), 1e-9)
	assert.Zero(t, blendConfidence(0.9, 0, ""))
}
