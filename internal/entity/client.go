package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PatternKind is how a client reference pattern is compared.
type PatternKind string

const (
	PatternExact  PatternKind = "exact"
	PatternPrefix PatternKind = "prefix"
	PatternRegex  PatternKind = "regex"
	PatternFuzzy  PatternKind = "fuzzy"
)

// Client is read-only billing reference data owned by an external collaborator.
type Client struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	InvoiceFrequency string          `json:"invoice_frequency"`
	CreditTermsDays  int             `json:"credit_terms_days"`
	Active           bool            `json:"active"`
	Patterns         []ClientPattern `json:"patterns"`
	Rates            []Rate          `json:"rates"`
}

type ClientPattern struct {
	ClientID string      `json:"client_id"`
	Pattern  string      `json:"pattern"`
	Kind     PatternKind `json:"kind"`
	Priority int         `json:"priority"`
	Active   bool        `json:"active"`
}

// Rate is a per-tonne price with an inclusive effective range; a nil
// EffectiveTo is open-ended.
type Rate struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	PerTonne      decimal.Decimal `json:"rate_per_tonne"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Approved      bool            `json:"approved"`
	ApprovedBy    string          `json:"approved_by,omitempty"`
}

// EffectiveOn reports whether the rate covers the given calendar day.
func (r Rate) EffectiveOn(day time.Time) bool {
	d := dateOnly(day)
	if d.Before(dateOnly(r.EffectiveFrom)) {
		return false
	}
	return r.EffectiveTo == nil || !d.After(dateOnly(*r.EffectiveTo))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
