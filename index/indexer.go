package index

import (
	"errors"
	"log/slog"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/calstore/caldata"
)

// sentinelDuration is the length of the synthetic far-future interval that
// stands in for the infinite tail of an unbounded series.
const sentinelDuration = time.Hour

// InstanceRow is one materialized TIME_RANGE entry ready for persistence.
type InstanceRow struct {
	Start       time.Time
	End         time.Time
	Floating    bool
	FBType      FBType
	Transparent bool
	PerUser     []caldata.UserTransparency
}

// Result is the derived index for one calendar object.
type Result struct {
	Rows []InstanceRow
	// RecurrenceMax is the last instance start of a bounded recurrence,
	// absent otherwise.
	RecurrenceMax mo.Option[time.Time]
}

// Indexer converts recurrence expansions into time-range rows.
type Indexer struct {
	logger *slog.Logger
}

// NewIndexer creates an Indexer logging through the given logger.
func NewIndexer(logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{logger: logger}
}

// Index expands comp up to horizon and produces its index rows. When the
// expansion trips over an invalid overridden instance and recovery is set
// (bulk migration contexts), it is retried ignoring invalid instances and the
// partial result is used; otherwise the failure propagates unchanged.
//
// Unbounded series get exactly one extra sentinel row at the far-future
// interval, coded FBUnknown and transparent, carrying the series-level
// per-user transparency so open-ended range queries can match the series
// without expanding it infinitely.
func (ix *Indexer) Index(comp *caldata.Component, horizon time.Time, recovery bool) (Result, error) {
	set, err := comp.ExpandTimeRanges(horizon, false)
	if err != nil {
		var invalid *caldata.InvalidInstanceError
		if !errors.As(err, &invalid) || !recovery {
			return Result{}, err
		}
		ix.logger.Warn("ignoring invalid overridden instance during recovery",
			"uid", invalid.UID,
			"rid", invalid.RecurrenceID)
		set, err = comp.ExpandTimeRanges(horizon, true)
		if err != nil {
			return Result{}, err
		}
	}

	result := Result{RecurrenceMax: set.Limit}
	for _, inst := range set.Instances {
		start, end := inst.Start, inst.End
		if !inst.Floating {
			start = start.UTC()
			end = end.UTC()
		}
		result.Rows = append(result.Rows, InstanceRow{
			Start:       start,
			End:         end,
			Floating:    inst.Floating,
			FBType:      FBTypeFromICal(inst.FBType()),
			Transparent: inst.Transparent(),
			PerUser:     comp.PerUserTransparency(inst.RecurrenceID),
		})
	}

	if comp.IsRecurringUnbounded() {
		result.Rows = append(result.Rows, InstanceRow{
			Start:       FarFuture,
			End:         FarFuture.Add(sentinelDuration),
			Floating:    false,
			FBType:      FBUnknown,
			Transparent: true,
			PerUser:     comp.PerUserTransparency(mo.None[time.Time]()),
		})
	}
	return result, nil
}
