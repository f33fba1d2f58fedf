// Package index turns expanded calendar components into the time-range rows
// backing free/busy and range queries.
package index

// FBType is the compact free/busy code stored in the TIME_RANGE index.
type FBType int

const (
	FBUnknown FBType = iota
	FBFree
	FBBusy
	FBBusyUnavailable
	FBBusyTentative
)

var icalToFBType = map[string]FBType{
	"UNKNOWN":          FBUnknown,
	"FREE":             FBFree,
	"BUSY":             FBBusy,
	"BUSY-UNAVAILABLE": FBBusyUnavailable,
	"BUSY-TENTATIVE":   FBBusyTentative,
}

var fbTypeToDisplay = map[FBType]string{
	FBUnknown:         "?",
	FBFree:            "F",
	FBBusy:            "B",
	FBBusyUnavailable: "U",
	FBBusyTentative:   "T",
}

// FBTypeFromICal maps an iCalendar free/busy type to its index code.
// Unrecognized values map to FBFree, the lenient default.
func FBTypeFromICal(fbtype string) FBType {
	if code, ok := icalToFBType[fbtype]; ok {
		return code
	}
	return FBFree
}

// DisplayCode returns the single-character display code for an index code.
func (t FBType) DisplayCode() string {
	if s, ok := fbTypeToDisplay[t]; ok {
		return s
	}
	return "?"
}

func (t FBType) String() string {
	switch t {
	case FBUnknown:
		return "UNKNOWN"
	case FBFree:
		return "FREE"
	case FBBusy:
		return "BUSY"
	case FBBusyUnavailable:
		return "BUSY-UNAVAILABLE"
	case FBBusyTentative:
		return "BUSY-TENTATIVE"
	default:
		return "UNKNOWN"
	}
}
