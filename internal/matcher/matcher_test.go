package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

func tk(n int64) entity.Ticket { return entity.Ticket{Number: n} }

func img(page int, detected, text string, conf float64) entity.ExtractedImage {
	return entity.ExtractedImage{
		PageIndex:      page,
		DetectedNumber: detected,
		Text:           text,
		Confidence:     conf,
		ArtifactKey:    "pages/doc/page-" + string(rune('0'+page)) + ".png",
	}
}

func TestMatchExactFuzzyAndUnmatched(t *testing.T) {
	tickets := []entity.Ticket{tk(2000), tk(1003), tk(1001), tk(1002)}
	images := []entity.ExtractedImage{
		img(0, "1001", "TICKET 1001", 0.9),
		img(1, "1002", "TICKET 1002", 0.3),
		img(2, "", "No 1O03 gross", 0.6),
	}

	got := New(DefaultConfig()).Match(tickets, images)
	require.Len(t, got, 4)

	assert.Equal(t, int64(1001), got[0].TicketNumber)
	assert.Equal(t, constants.MatchExactNumber, got[0].Method)
	assert.Equal(t, constants.DispositionMatched, got[0].Disposition)
	assert.Equal(t, 0, got[0].PageIndex)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-9)
	assert.Equal(t, "pages/doc/page-0.png", got[0].ImageKey)

	// low image confidence falls through to fuzzy
	assert.Equal(t, int64(1002), got[1].TicketNumber)
	assert.Equal(t, constants.MatchFuzzyText, got[1].Method)
	assert.Equal(t, 1, got[1].PageIndex)
	assert.Equal(t, constants.DispositionMatched, got[1].Disposition)

	assert.Equal(t, int64(1003), got[2].TicketNumber)
	assert.Equal(t, 2, got[2].PageIndex)

	assert.Equal(t, int64(2000), got[3].TicketNumber)
	assert.Equal(t, constants.MatchNone, got[3].Method)
	assert.Equal(t, constants.DispositionUnmatched, got[3].Disposition)
	assert.Equal(t, entity.NoPage, got[3].PageIndex)
	assert.False(t, got[3].Matched())
}

func TestMatchTieGoesToLowestPage(t *testing.T) {
	images := []entity.ExtractedImage{
		img(3, "5555", "", 0.8),
		img(1, "5555", "", 0.8),
	}
	got := New(DefaultConfig()).Match([]entity.Ticket{tk(5555)}, images)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].PageIndex)
}

func TestMatchImageClaimedOnce(t *testing.T) {
	images := []entity.ExtractedImage{img(0, "12345", "", 0.2)}
	got := New(DefaultConfig()).Match([]entity.Ticket{tk(12346), tk(12345)}, images)
	require.Len(t, got, 2)

	assert.Equal(t, int64(12345), got[0].TicketNumber)
	assert.Equal(t, 0, got[0].PageIndex)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)

	assert.Equal(t, constants.DispositionUnmatched, got[1].Disposition)
}

func TestMatchLowSimilarityNeedsReview(t *testing.T) {
	got := New(DefaultConfig()).Match([]entity.Ticket{tk(12346)}, []entity.ExtractedImage{img(0, "12349", "", 0.9)})
	require.Len(t, got, 1)
	assert.Equal(t, constants.MatchFuzzyText, got[0].Method)
	assert.Equal(t, constants.DispositionNeedsReview, got[0].Disposition)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
	assert.False(t, got[0].Matched())
}

func TestMatchBelowFuzzyThreshold(t *testing.T) {
	got := New(DefaultConfig()).Match([]entity.Ticket{tk(12345)}, []entity.ExtractedImage{img(0, "98765", "", 0.9)})
	require.Len(t, got, 1)
	assert.Equal(t, constants.DispositionUnmatched, got[0].Disposition)
}

func TestMatchIsDeterministic(t *testing.T) {
	tickets := []entity.Ticket{tk(1), tk(104233), tk(104234), tk(104235)}
	images := []entity.ExtractedImage{
		img(0, "104233", "", 0.7),
		img(1, "", "ticket 104234", 0.4),
		img(2, "104285", "", 0.95),
	}
	m := New(DefaultConfig())
	first := m.Match(tickets, images)

	reversedT := []entity.Ticket{tickets[3], tickets[2], tickets[1], tickets[0]}
	reversedI := []entity.ExtractedImage{images[2], images[1], images[0]}
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Match(reversedT, reversedI))
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	assert.Empty(t, New(Config{}).Match(nil, nil))
	got := New(Config{}).Match([]entity.Ticket{tk(7)}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, constants.DispositionUnmatched, got[0].Disposition)
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "1003", DigitsOnly("1O03"))
	assert.Equal(t, "1585", DigitsOnly("ISB5"))
	assert.Equal(t, "2600", DigitsOnly("zg00"))
	assert.Equal(t, "42", DigitsOnly("0042"))
	assert.Equal(t, "", DigitsOnly("no"))
}

func TestPairSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, PairSimilarity("Tickets_0512", "tickets_0512 "), 1e-9)
	assert.Less(t, PairSimilarity("tickets_0512", "invoice_0611"), 0.9)
}
