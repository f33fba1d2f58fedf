package caldata

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

const (
	compPerUser     = "X-CALENDARSERVER-PERUSER"
	compPerInstance = "X-CALENDARSERVER-PERINSTANCE"
	propPerUserUID  = "X-CALENDARSERVER-PERUSER-UID"
)

// UserTransparency is one user's free/busy transparency override.
type UserTransparency struct {
	UserID      string
	Transparent bool
}

// PerUserTransparency returns the per-user transparency overrides that apply
// to the instance identified by rid. Each X-CALENDARSERVER-PERUSER
// sub-component contributes at most one entry: the X-CALENDARSERVER-PERINSTANCE
// child matching rid, or the child without a RECURRENCE-ID as the series-level
// default. Pass no rid for the series-level set (used by the unbounded
// sentinel).
func (c *Component) PerUserTransparency(rid mo.Option[time.Time]) []UserTransparency {
	var out []UserTransparency
	for _, child := range c.cal.Children {
		if child.Name != compPerUser {
			continue
		}
		uidProp := child.Props.Get(propPerUserUID)
		if uidProp == nil || uidProp.Value == "" {
			continue
		}
		if transp, ok := perInstanceTransparency(child, rid); ok {
			out = append(out, UserTransparency{UserID: uidProp.Value, Transparent: transp})
		}
	}
	return out
}

func perInstanceTransparency(perUser *ical.Component, rid mo.Option[time.Time]) (transparent, ok bool) {
	var fallback *ical.Component
	for _, inst := range perUser.Children {
		if inst.Name != compPerInstance {
			continue
		}
		ridProp := inst.Props.Get(ical.PropRecurrenceID)
		if ridProp == nil {
			fallback = inst
			continue
		}
		want, hasRID := rid.Get()
		if !hasRID {
			continue
		}
		t, _, err := parseDateTimeProp(ridProp)
		if err == nil && t.Equal(want) {
			return transparencyOf(inst)
		}
	}
	if fallback != nil {
		return transparencyOf(fallback)
	}
	return false, false
}

func transparencyOf(comp *ical.Component) (transparent, ok bool) {
	prop := comp.Props.Get(ical.PropTransparency)
	if prop == nil {
		return false, false
	}
	return prop.Value == "TRANSPARENT", true
}

// overridesByRecurrenceID maps each override to its parsed RECURRENCE-ID.
func (c *Component) overridesByRecurrenceID() (map[time.Time]*ical.Component, error) {
	out := make(map[time.Time]*ical.Component)
	for _, override := range c.overrideComponents() {
		rid, _, err := parseDateTimeProp(override.Props.Get(ical.PropRecurrenceID))
		if err != nil {
			return nil, err
		}
		out[rid.UTC()] = override
	}
	return out, nil
}
