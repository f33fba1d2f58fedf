package caldata

import (
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// InvalidInstanceError reports an overridden instance whose RECURRENCE-ID
// does not correspond to any occurrence of its series.
type InvalidInstanceError struct {
	UID          string
	RecurrenceID time.Time
}

func (e *InvalidInstanceError) Error() string {
	return fmt.Sprintf("invalid overridden instance %s in %s", e.RecurrenceID.Format(dateTimeUTCFormat), e.UID)
}

// ExpandTimeRanges materializes all occurrences of the component with a start
// before horizon, resolving RRULE, RDATE, EXDATE and RECURRENCE-ID overrides.
//
// An override whose RECURRENCE-ID matches no occurrence of the series fails
// the expansion with InvalidInstanceError unless ignoreInvalid is set, in
// which case the offending override is dropped and the partial result is
// returned. Overrides scheduled beyond the horizon are skipped, not invalid.
func (c *Component) ExpandTimeRanges(horizon time.Time, ignoreInvalid bool) (*InstanceSet, error) {
	master := c.MasterComponent()
	if master == nil {
		return c.expandOverridesOnly(horizon)
	}

	masterStart, masterEnd, floating, err := componentInterval(master)
	if err != nil {
		return nil, err
	}
	duration := masterEnd.Sub(masterStart)

	// Occurrence starts and recurrence ids are keyed in UTC so map lookups
	// compare instants, not zone-qualified times.
	occurrences, err := c.occurrenceStarts(master, masterStart.UTC(), horizon)
	if err != nil {
		return nil, err
	}

	overrides, err := c.overridesByRecurrenceID()
	if err != nil {
		return nil, err
	}

	set := &InstanceSet{}
	recurring := c.IsRecurring()
	exdates := c.exceptionDates(master)
	occurred := make(map[time.Time]bool, len(occurrences))
	for _, start := range occurrences {
		occurred[start] = true
		if !start.Before(horizon) {
			continue
		}
		if isExcluded(start, exdates) {
			continue
		}
		rid := mo.None[time.Time]()
		if recurring {
			rid = mo.Some(start)
		}
		if override, ok := overrides[start]; ok {
			inst, err := overrideInstance(override, start)
			if err != nil {
				return nil, err
			}
			set.Instances = append(set.Instances, inst)
			delete(overrides, start)
			continue
		}
		set.Instances = append(set.Instances, Instance{
			Start:        start,
			End:          start.Add(duration),
			Floating:     floating,
			RecurrenceID: rid,
			Source:       master,
		})
	}

	// Whatever is left over points at no indexed occurrence of the series.
	for rid, override := range overrides {
		switch {
		case occurred[rid] && rid.Before(horizon):
			// The occurrence exists but fell to an EXDATE; the
			// override reinstates it.
			inst, err := overrideInstance(override, rid)
			if err != nil {
				return nil, err
			}
			set.Instances = append(set.Instances, inst)
		case !rid.Before(horizon):
			// Beyond the indexed window; cannot be validated cheaply.
		case ignoreInvalid:
		default:
			return nil, &InvalidInstanceError{UID: c.UID(), RecurrenceID: rid}
		}
	}

	sort.Slice(set.Instances, func(i, j int) bool {
		return set.Instances[i].Start.Before(set.Instances[j].Start)
	})

	if recurring && !c.IsRecurringUnbounded() && len(set.Instances) > 0 {
		last := set.Instances[len(set.Instances)-1]
		set.Limit = mo.Some(last.Start.UTC())
	}
	return set, nil
}

// expandOverridesOnly indexes a component that consists purely of overridden
// instances; with no master there is no series to validate against, so every
// override is taken at face value.
func (c *Component) expandOverridesOnly(horizon time.Time) (*InstanceSet, error) {
	set := &InstanceSet{}
	for _, override := range c.overrideComponents() {
		ridProp := override.Props.Get(ical.PropRecurrenceID)
		rid, _, err := parseDateTimeProp(ridProp)
		if err != nil {
			return nil, err
		}
		inst, err := overrideInstance(override, rid.UTC())
		if err != nil {
			return nil, err
		}
		if !inst.Start.Before(horizon) {
			continue
		}
		set.Instances = append(set.Instances, inst)
	}
	sort.Slice(set.Instances, func(i, j int) bool {
		return set.Instances[i].Start.Before(set.Instances[j].Start)
	})
	return set, nil
}

func overrideInstance(override *ical.Component, rid time.Time) (Instance, error) {
	start, end, floating, err := componentInterval(override)
	if err != nil {
		return Instance{}, err
	}
	return Instance{
		Start:        start,
		End:          end,
		Floating:     floating,
		RecurrenceID: mo.Some(rid),
		Source:       override,
	}, nil
}

// occurrenceStarts collects the series start times up to the horizon: the
// master start, RRULE expansion and RDATEs. EXDATE filtering happens later so
// overrides of excluded occurrences can still be validated.
func (c *Component) occurrenceStarts(master *ical.Component, masterStart, horizon time.Time) ([]time.Time, error) {
	starts := []time.Time{masterStart}
	seen := map[time.Time]bool{masterStart: true}

	if prop := master.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		// Anchor the rule at the master start; rrule-go wants the
		// DTSTART inline.
		ruleText := fmt.Sprintf("DTSTART:%s\nRRULE:%s",
			masterStart.UTC().Format(dateTimeUTCFormat), prop.Value)
		ruleSet, err := rrule.StrToRRuleSet(ruleText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RRULE %q: %w", prop.Value, err)
		}
		for _, t := range ruleSet.Between(masterStart, horizon, true) {
			if !seen[t] {
				seen[t] = true
				starts = append(starts, t)
			}
		}
	}

	if prop := master.Props.Get(ical.PropRecurrenceDates); prop != nil && prop.Value != "" {
		rdates, err := parseDateTimeList(prop)
		if err != nil {
			return nil, err
		}
		for _, t := range rdates {
			t = t.UTC()
			if !seen[t] {
				seen[t] = true
				starts = append(starts, t)
			}
		}
	}

	return starts, nil
}

func (c *Component) exceptionDates(master *ical.Component) []time.Time {
	prop := master.Props.Get(ical.PropExceptionDates)
	if prop == nil || prop.Value == "" {
		return nil
	}
	exdates, err := parseDateTimeList(prop)
	if err != nil {
		return nil
	}
	return exdates
}

func isExcluded(t time.Time, exdates []time.Time) bool {
	for _, exdate := range exdates {
		if t.Equal(exdate) {
			return true
		}
	}
	return false
}
