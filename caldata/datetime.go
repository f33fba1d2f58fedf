package caldata

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	dateFormat        = "20060102"
	dateTimeFormat    = "20060102T150405"
	dateTimeUTCFormat = "20060102T150405Z"
)

// parseDateTimeProp parses a DTSTART/DTEND/RECURRENCE-ID style property and
// reports whether the value is floating (no time zone attached). Date-only
// values and naive date-times are floating; TZID-qualified and trailing-Z
// values are not. Floating values are carried in UTC so arithmetic stays
// uniform.
func parseDateTimeProp(prop *ical.Prop) (t time.Time, floating bool, err error) {
	value := strings.TrimSpace(prop.Value)

	if isDateOnly(prop) {
		t, err = time.ParseInLocation(dateFormat, value, time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date value %q: %w", value, err)
		}
		return t, true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err = time.Parse(dateTimeUTCFormat, value)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date-time value %q: %w", value, err)
		}
		return t, false, nil
	}

	if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
		loc, locErr := time.LoadLocation(tzid)
		if locErr == nil {
			t, err = time.ParseInLocation(dateTimeFormat, value, loc)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("invalid date-time value %q: %w", value, err)
			}
			return t, false, nil
		}
		// Unknown TZID: fall through and treat the value as floating.
	}

	t, err = time.ParseInLocation(dateTimeFormat, value, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date-time value %q: %w", value, err)
	}
	return t, true, nil
}

func isDateOnly(prop *ical.Prop) bool {
	if v := prop.Params.Get(ical.ParamValue); strings.EqualFold(v, "DATE") {
		return true
	}
	return len(strings.TrimSpace(prop.Value)) == len(dateFormat)
}

// componentInterval extracts the [start, end) interval of a sub-component
// from DTSTART plus DTEND, DURATION or the RFC 5545 defaults.
func componentInterval(comp *ical.Component) (start, end time.Time, floating bool, err error) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("component %s has no DTSTART", comp.Name)
	}
	start, floating, err = parseDateTimeProp(startProp)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	if endProp := comp.Props.Get(endPropName(comp)); endProp != nil {
		end, _, err = parseDateTimeProp(endProp)
		if err != nil {
			return time.Time{}, time.Time{}, false, err
		}
		return start, end, floating, nil
	}

	if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		dur, durErr := durProp.Duration()
		if durErr != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("invalid DURATION: %w", durErr)
		}
		return start, start.Add(dur), floating, nil
	}

	// Defaults: one day for date-only starts, instantaneous otherwise.
	if isDateOnly(startProp) {
		return start, start.AddDate(0, 0, 1), floating, nil
	}
	return start, start, floating, nil
}

func endPropName(comp *ical.Component) string {
	if comp.Name == ical.CompToDo {
		return ical.PropDue
	}
	return ical.PropDateTimeEnd
}

// parseDateTimeList parses comma-separated RDATE/EXDATE values.
func parseDateTimeList(prop *ical.Prop) ([]time.Time, error) {
	var out []time.Time
	for _, raw := range strings.Split(prop.Value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		single := *prop
		single.Value = raw
		t, _, err := parseDateTimeProp(&single)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
