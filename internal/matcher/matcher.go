// Package matcher pairs parsed tickets with the page images recognized from
// the accompanying PDF.
package matcher

import (
	"sort"
	"strconv"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
)

type Config struct {
	// ExactThreshold is the minimum image confidence for an exact number match.
	ExactThreshold float64
	// FuzzyThreshold is the minimum similarity for a fuzzy match.
	FuzzyThreshold float64
	// AdvisoryThreshold: fuzzy matches scoring below it are kept but marked needs-review.
	AdvisoryThreshold float64
}

func DefaultConfig() Config {
	return Config{ExactThreshold: 0.5, FuzzyThreshold: 0.7, AdvisoryThreshold: 0.9}
}

type Matcher struct {
	cfg Config
}

func New(cfg Config) *Matcher {
	d := DefaultConfig()
	if cfg.ExactThreshold <= 0 {
		cfg.ExactThreshold = d.ExactThreshold
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = d.FuzzyThreshold
	}
	if cfg.AdvisoryThreshold <= 0 {
		cfg.AdvisoryThreshold = d.AdvisoryThreshold
	}
	return &Matcher{cfg: cfg}
}

type candidate struct {
	ticket int // index into tickets
	image  int // index into images
	score  float64
}

// Match returns one MatchResult per ticket, ordered by ticket number. Exact
// number matches are claimed first, strongest image first; remaining tickets
// then compete for unclaimed images by similarity. An image is claimed at most
// once. Output depends only on the inputs.
func (m *Matcher) Match(tickets []entity.Ticket, images []entity.ExtractedImage) []entity.MatchResult {
	tickets = sortedTickets(tickets)
	images = sortedImages(images)

	results := make([]*entity.MatchResult, len(tickets))
	claimed := make([]bool, len(images))

	numbers := make([]string, len(tickets))
	for i, t := range tickets {
		numbers[i] = strconv.FormatInt(t.Number, 10)
	}

	// exact
	var exact []candidate
	for ti := range tickets {
		for ii, img := range images {
			if img.Confidence < m.cfg.ExactThreshold {
				continue
			}
			if DigitsOnly(img.DetectedNumber) == numbers[ti] {
				exact = append(exact, candidate{ticket: ti, image: ii, score: img.Confidence})
			}
		}
	}
	claim(exact, results, claimed, func(c candidate) entity.MatchResult {
		return m.result(tickets[c.ticket], &images[c.image], c.score, constants.MatchExactNumber, constants.DispositionMatched)
	})

	// fuzzy
	var fuzzy []candidate
	for ti := range tickets {
		if results[ti] != nil {
			continue
		}
		for ii, img := range images {
			if claimed[ii] {
				continue
			}
			if s := Similarity(numbers[ti], img); s >= m.cfg.FuzzyThreshold {
				fuzzy = append(fuzzy, candidate{ticket: ti, image: ii, score: s})
			}
		}
	}
	claim(fuzzy, results, claimed, func(c candidate) entity.MatchResult {
		disp := constants.DispositionMatched
		if c.score < m.cfg.AdvisoryThreshold {
			disp = constants.DispositionNeedsReview
		}
		return m.result(tickets[c.ticket], &images[c.image], c.score, constants.MatchFuzzyText, disp)
	})

	out := make([]entity.MatchResult, len(tickets))
	for i, t := range tickets {
		if results[i] == nil {
			out[i] = m.result(t, nil, 0, constants.MatchNone, constants.DispositionUnmatched)
			continue
		}
		out[i] = *results[i]
	}
	return out
}

// claim walks candidates by descending score, lowest page, lowest ticket
// number and assigns each pair whose ticket and image are both still free.
func claim(cands []candidate, results []*entity.MatchResult, claimed []bool, build func(candidate) entity.MatchResult) {
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		if cands[a].image != cands[b].image {
			return cands[a].image < cands[b].image
		}
		return cands[a].ticket < cands[b].ticket
	})
	for _, c := range cands {
		if results[c.ticket] != nil || claimed[c.image] {
			continue
		}
		r := build(c)
		results[c.ticket] = &r
		claimed[c.image] = true
	}
}

func (m *Matcher) result(t entity.Ticket, img *entity.ExtractedImage, conf float64, method constants.MatchMethod, disp constants.Disposition) entity.MatchResult {
	r := entity.MatchResult{
		BatchID:      t.BatchID,
		TicketNumber: t.Number,
		PageIndex:    entity.NoPage,
		Confidence:   conf,
		Method:       method,
		Disposition:  disp,
	}
	if img != nil {
		r.PageIndex = img.PageIndex
		r.ImageKey = img.ArtifactKey
	}
	return r
}

func sortedTickets(in []entity.Ticket) []entity.Ticket {
	out := append([]entity.Ticket(nil), in...)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Number != out[b].Number {
			return out[a].Number < out[b].Number
		}
		return out[a].SourceRow < out[b].SourceRow
	})
	return out
}

// images are indexed by page so candidate order breaks ties on lowest page
func sortedImages(in []entity.ExtractedImage) []entity.ExtractedImage {
	out := append([]entity.ExtractedImage(nil), in...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].PageIndex < out[b].PageIndex })
	return out
}

// PairSimilarity compares two file stems case-insensitively.
func PairSimilarity(a, b string) float64 {
	return levenshtein.Similarity(lower(a), lower(b), nil)
}
