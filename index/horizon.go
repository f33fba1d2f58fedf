package index

import (
	"errors"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/calstore/caldata"
)

// ErrHorizonExceeded is returned when a requested expansion horizon lies
// beyond the maximum future-expansion window. The index is a caching
// structure; queries past the cap must fall back to on-demand expansion by
// the caller rather than grow the index without bound.
var ErrHorizonExceeded = errors.New("expansion horizon exceeds maximum future-expansion window")

// FarFuture is the fixed instant used when a component can be indexed
// completely, and the start of the unbounded-recurrence sentinel.
var FarFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// HorizonConfig holds the expansion window durations. These are caching
// parameters: they bound the size of the index, not the correctness of
// searches beyond it.
type HorizonConfig struct {
	// DefaultFutureExpansion is how far past today recurrences are
	// materialized when the caller supplies no horizon.
	DefaultFutureExpansion time.Duration
	// MaximumFutureExpansion caps caller-supplied horizons.
	MaximumFutureExpansion time.Duration
}

// DefaultHorizonConfig provides the standard one-year window with a
// five-year cap.
var DefaultHorizonConfig = HorizonConfig{
	DefaultFutureExpansion: 365 * 24 * time.Hour,
	MaximumFutureExpansion: 5 * 365 * 24 * time.Hour,
}

// Horizon decides how far forward comp must be expanded for indexing.
//
// Components without a master definition, and non-recurring bounded ones, are
// cheap to index completely and get the far-future horizon regardless of
// override. For everything else the override wins when given, else today plus
// the default window; a result past today plus the maximum window fails with
// ErrHorizonExceeded.
func (c HorizonConfig) Horizon(comp *caldata.Component, override mo.Option[time.Time], now time.Time) (time.Time, error) {
	if comp.MasterComponent() == nil || !comp.IsRecurring() && !comp.IsRecurringUnbounded() {
		return FarFuture, nil
	}

	today := now.UTC().Truncate(24 * time.Hour)
	horizon := override.OrElse(today.Add(c.DefaultFutureExpansion))
	if horizon.After(today.Add(c.MaximumFutureExpansion)) {
		return time.Time{}, ErrHorizonExceeded
	}
	return horizon, nil
}
