// Package resolver maps a ticket's reference key to a client and the rate
// in force on the ticket's entry date.
package resolver

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/reference"
)

const (
	prefixCap      = 0.95
	regexCap       = 0.90
	fuzzyThreshold = 0.6
	fuzzyScale     = 0.85
)

var kindRank = map[entity.PatternKind]int{
	entity.PatternExact:  0,
	entity.PatternPrefix: 1,
	entity.PatternRegex:  2,
	entity.PatternFuzzy:  3,
}

// Resolution is a successful client and rate lookup.
type Resolution struct {
	ClientID   string
	ClientName string
	Pattern    string
	Kind       entity.PatternKind
	Confidence float64
	Rate       entity.Rate
}

func (r Resolution) PerTonne() decimal.Decimal { return r.Rate.PerTonne }

// ResolutionFailure explains why a reference could not be billed.
type ResolutionFailure struct {
	Code      constants.IssueCode
	Reference string
	Message   string
}

func (f *ResolutionFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Issue renders the failure as a report finding for a ticket.
func (f *ResolutionFailure) Issue(ticket int64) entity.Issue {
	return entity.Issue{Code: f.Code, Severity: entity.SeverityError, Ticket: ticket, Message: f.Message}
}

type compiled struct {
	client  *entity.Client
	pattern entity.ClientPattern
	norm    string
	re      *regexp.Regexp
}

type Resolver struct {
	patterns []compiled
	logger   *slog.Logger
}

type candidate struct {
	c          *compiled
	confidence float64
}

// New indexes the active patterns of active clients. Invalid regex patterns
// are logged and ignored.
func New(clients []entity.Client, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{logger: logger}
	for i := range clients {
		cl := &clients[i]
		if !cl.Active {
			continue
		}
		for _, p := range cl.Patterns {
			if !p.Active || strings.TrimSpace(p.Pattern) == "" {
				continue
			}
			c := compiled{client: cl, pattern: p, norm: reference.Normalize(p.Pattern)}
			switch p.Kind {
			case entity.PatternRegex:
				re, err := regexp.Compile("(?i)" + p.Pattern)
				if err != nil {
					logger.Warn("resolver.pattern.invalid", "client_id", cl.ID, "pattern", p.Pattern, "error", err)
					continue
				}
				c.re = re
			case entity.PatternPrefix:
				c.norm = strings.TrimSuffix(c.norm, "*")
			case entity.PatternExact, entity.PatternFuzzy:
			default:
				logger.Warn("resolver.pattern.unknown_kind", "client_id", cl.ID, "kind", p.Kind)
				continue
			}
			r.patterns = append(r.patterns, c)
		}
	}
	return r
}

// Resolve finds the single best client for ref and its one approved rate
// effective on day.
func (r *Resolver) Resolve(ref string, day time.Time) (Resolution, *ResolutionFailure) {
	cands := r.candidates(ref)
	if len(cands) == 0 {
		return Resolution{}, &ResolutionFailure{Code: constants.IssueNoClient, Reference: ref,
			Message: fmt.Sprintf("no client pattern matches reference %q", ref)}
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if !sameRank(best, c) {
			break
		}
		if c.c.client.ID != best.c.client.ID {
			r.logger.Debug("resolver.client.ambiguous", "reference", ref, "a", best.c.client.ID, "b", c.c.client.ID)
			return Resolution{}, &ResolutionFailure{Code: constants.IssueAmbiguousClient, Reference: ref,
				Message: fmt.Sprintf("reference %q matches clients %s and %s equally", ref, best.c.client.Name, c.c.client.Name)}
		}
	}

	cl := best.c.client
	var effective []entity.Rate
	for _, rt := range cl.Rates {
		if rt.Approved && rt.EffectiveOn(day) {
			effective = append(effective, rt)
		}
	}
	date := day.Format("2006-01-02")
	switch len(effective) {
	case 0:
		return Resolution{}, &ResolutionFailure{Code: constants.IssueNoRate, Reference: ref,
			Message: fmt.Sprintf("client %s has no approved rate effective on %s", cl.Name, date)}
	case 1:
	default:
		return Resolution{}, &ResolutionFailure{Code: constants.IssueAmbiguousRate, Reference: ref,
			Message: fmt.Sprintf("client %s has %d approved rates effective on %s", cl.Name, len(effective), date)}
	}

	return Resolution{
		ClientID:   cl.ID,
		ClientName: cl.Name,
		Pattern:    best.c.pattern.Pattern,
		Kind:       best.c.pattern.Kind,
		Confidence: best.confidence,
		Rate:       effective[0],
	}, nil
}

func sameRank(a, b candidate) bool {
	return kindRank[a.c.pattern.Kind] == kindRank[b.c.pattern.Kind] &&
		a.confidence == b.confidence &&
		a.c.pattern.Priority == b.c.pattern.Priority
}

// candidates returns every matching pattern ordered by kind, confidence desc,
// priority asc, then client name.
func (r *Resolver) candidates(ref string) []candidate {
	norm := reference.Normalize(ref)
	if norm == "" {
		return nil
	}
	var out []candidate
	for i := range r.patterns {
		c := &r.patterns[i]
		if conf, ok := score(c, norm); ok {
			out = append(out, candidate{c: c, confidence: conf})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ka, kb := kindRank[a.c.pattern.Kind], kindRank[b.c.pattern.Kind]; ka != kb {
			return ka < kb
		}
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.c.pattern.Priority != b.c.pattern.Priority {
			return a.c.pattern.Priority < b.c.pattern.Priority
		}
		return a.c.client.Name < b.c.client.Name
	})
	return out
}

func score(c *compiled, ref string) (float64, bool) {
	switch c.pattern.Kind {
	case entity.PatternExact:
		return 1, ref == c.norm
	case entity.PatternPrefix:
		if c.norm == "" || !strings.HasPrefix(ref, c.norm) {
			return 0, false
		}
		return min(float64(len(c.norm))/float64(len(ref)), prefixCap), true
	case entity.PatternRegex:
		loc := c.re.FindStringIndex(ref)
		if loc == nil || loc[0] != 0 {
			return 0, false
		}
		return min(float64(loc[1])/float64(len(ref)), regexCap), true
	case entity.PatternFuzzy:
		s := levenshtein.Similarity(ref, c.norm, nil)
		if s < fuzzyThreshold {
			return 0, false
		}
		return s * fuzzyScale, true
	}
	return 0, false
}
