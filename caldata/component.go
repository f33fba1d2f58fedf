// Package caldata wraps a parsed iCalendar object and exposes the pieces the
// indexing layer needs: recurrence shape, time-range expansion and per-user
// transparency. Recurrence math itself is delegated to rrule-go.
package caldata

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Component is one stored calendar resource: a VCALENDAR holding a single
// logical event (one master component plus any number of RECURRENCE-ID
// overrides sharing its UID), or a set of overrides with no master.
type Component struct {
	cal *ical.Calendar
}

// NewComponent wraps an already-decoded calendar.
func NewComponent(cal *ical.Calendar) *Component {
	return &Component{cal: cal}
}

// ParseComponent decodes iCalendar text into a Component.
func ParseComponent(text string) (*Component, error) {
	cal, err := ical.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	return &Component{cal: cal}, nil
}

// Calendar returns the underlying go-ical calendar.
func (c *Component) Calendar() *ical.Calendar {
	return c.cal
}

// Text re-encodes the component into canonical iCalendar text.
func (c *Component) Text() (string, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(c.cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.String(), nil
}

// subComponents returns the event-level children (VEVENT, VTODO, VJOURNAL),
// skipping VTIMEZONE and X- components.
func (c *Component) subComponents() []*ical.Component {
	var out []*ical.Component
	for _, child := range c.cal.Children {
		switch child.Name {
		case ical.CompEvent, ical.CompToDo, ical.CompJournal:
			out = append(out, child)
		}
	}
	return out
}

// MasterComponent returns the sub-component without a RECURRENCE-ID, or nil
// when the object consists only of overridden instances.
func (c *Component) MasterComponent() *ical.Component {
	for _, comp := range c.subComponents() {
		if comp.Props.Get(ical.PropRecurrenceID) == nil {
			return comp
		}
	}
	return nil
}

// overrideComponents returns the sub-components carrying a RECURRENCE-ID.
func (c *Component) overrideComponents() []*ical.Component {
	var out []*ical.Component
	for _, comp := range c.subComponents() {
		if comp.Props.Get(ical.PropRecurrenceID) != nil {
			out = append(out, comp)
		}
	}
	return out
}

// UID returns the UID shared by the object's sub-components. Overridden
// instances of one series all carry the same UID, so the first hit wins.
func (c *Component) UID() string {
	for _, comp := range c.subComponents() {
		if prop := comp.Props.Get(ical.PropUID); prop != nil {
			return prop.Value
		}
	}
	return ""
}

// Kind returns the main component type, e.g. "VEVENT".
func (c *Component) Kind() string {
	if comps := c.subComponents(); len(comps) > 0 {
		return comps[0].Name
	}
	return ""
}

// Organizer returns the ORGANIZER value of the master (or first) component,
// or "" if none is set.
func (c *Component) Organizer() string {
	comp := c.MasterComponent()
	if comp == nil {
		if comps := c.subComponents(); len(comps) > 0 {
			comp = comps[0]
		} else {
			return ""
		}
	}
	if prop := comp.Props.Get(ical.PropOrganizer); prop != nil {
		return prop.Value
	}
	return ""
}

// rruleOption parses the master's RRULE, if any.
func (c *Component) rruleOption() *rrule.ROption {
	master := c.MasterComponent()
	if master == nil {
		return nil
	}
	prop := master.Props.Get(ical.PropRecurrenceRule)
	if prop == nil || prop.Value == "" {
		return nil
	}
	opt, err := rrule.StrToROption(prop.Value)
	if err != nil {
		return nil
	}
	return opt
}

// IsRecurring reports whether the master defines a recurrence rule or
// additional recurrence dates.
func (c *Component) IsRecurring() bool {
	master := c.MasterComponent()
	if master == nil {
		return false
	}
	if prop := master.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		return true
	}
	if prop := master.Props.Get(ical.PropRecurrenceDates); prop != nil && prop.Value != "" {
		return true
	}
	return false
}

// IsRecurringUnbounded reports whether the recurrence has neither COUNT nor
// UNTIL, i.e. extends forever.
func (c *Component) IsRecurringUnbounded() bool {
	opt := c.rruleOption()
	if opt == nil {
		return false
	}
	return opt.Count == 0 && opt.Until.IsZero()
}

// FBType returns the free/busy type a sub-component contributes to the index:
// only opaque, non-cancelled VEVENTs block time.
func FBType(comp *ical.Component) string {
	if comp.Name != ical.CompEvent {
		return "FREE"
	}
	if prop := comp.Props.Get(ical.PropTransparency); prop != nil && prop.Value == "TRANSPARENT" {
		return "FREE"
	}
	if prop := comp.Props.Get(ical.PropStatus); prop != nil {
		switch prop.Value {
		case "CANCELLED":
			return "FREE"
		case "TENTATIVE":
			return "BUSY-TENTATIVE"
		}
	}
	return "BUSY"
}

// Instance is one concrete occurrence produced by expansion.
type Instance struct {
	// Start and End are the occurrence bounds. For floating instances the
	// naive local time is carried in UTC.
	Start time.Time
	End   time.Time
	// Floating marks an instance with no fixed time zone.
	Floating bool
	// RecurrenceID scopes this instance within its series. Absent for the
	// single instance of a non-recurring component.
	RecurrenceID mo.Option[time.Time]
	// Source is the sub-component this instance was derived from (the
	// master, or an override).
	Source *ical.Component
}

// FBType returns the free/busy type of this instance's source component.
func (in Instance) FBType() string {
	return FBType(in.Source)
}

// Transparent reports whether the instance is excluded from free/busy
// computation by its TRANSP property.
func (in Instance) Transparent() bool {
	prop := in.Source.Props.Get(ical.PropTransparency)
	return prop != nil && prop.Value == "TRANSPARENT"
}

// InstanceSet is the ordered result of a time-range expansion.
type InstanceSet struct {
	Instances []Instance
	// Limit is the last instance start of a bounded recurrence, normalized
	// to UTC. Absent for unbounded series, non-recurring components and
	// empty expansions.
	Limit mo.Option[time.Time]
}
