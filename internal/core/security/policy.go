package security

import (
	"context"
	"time"

	"retailcore/internal/core/apperror"
)

// PostingPolicy defines rules for GL journal posting.
// Deployments may run strict (regulatory) or flexible period control.
type PostingPolicy interface {
	// CanPost checks if a journal can be posted with given date
	CanPost(ctx context.Context, journalDate time.Time) error

	// CanReverse checks if a posted journal may be reversed
	CanReverse(ctx context.Context, journalDate time.Time) error

	// GetClosedPeriod returns the date until which period is closed
	GetClosedPeriod(ctx context.Context) time.Time
}

// StrictPolicy forbids any postings into a closed period.
// Used for regulatory compliance.
type StrictPolicy struct {
	closedUntil time.Time
}

// NewStrictPolicy creates policy that forbids postings before closedUntil.
func NewStrictPolicy(closedUntil time.Time) *StrictPolicy {
	return &StrictPolicy{closedUntil: closedUntil}
}

func (p *StrictPolicy) CanPost(ctx context.Context, journalDate time.Time) error {
	if journalDate.Before(p.closedUntil) {
		return apperror.NewPeriodClosed(p.closedUntil.Format("2006-01"))
	}
	return nil
}

func (p *StrictPolicy) CanReverse(ctx context.Context, journalDate time.Time) error {
	// A reversal journal is dated today, so only the closed boundary matters.
	return p.CanPost(ctx, time.Now().UTC())
}

func (p *StrictPolicy) GetClosedPeriod(ctx context.Context) time.Time {
	return p.closedUntil
}

// OpenPolicy places no period restriction on postings.
// Suitable for development and small shops.
type OpenPolicy struct{}

func (OpenPolicy) CanPost(ctx context.Context, journalDate time.Time) error    { return nil }
func (OpenPolicy) CanReverse(ctx context.Context, journalDate time.Time) error { return nil }
func (OpenPolicy) GetClosedPeriod(ctx context.Context) time.Time               { return time.Time{} }

var (
	_ PostingPolicy = (*StrictPolicy)(nil)
	_ PostingPolicy = OpenPolicy{}
)
