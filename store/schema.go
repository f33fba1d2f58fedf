package store

import (
	"time"
)

// Attachment handling modes stored in CALENDAR_OBJECT.ATTACHMENTS_MODE.
const (
	AttachmentsModeNone  = 0
	AttachmentsModeWrite = 1
)

// CalendarObjectRow is one stored calendar resource. Column names (including
// the historical RECURRANCE_MAX spelling) match the legacy schema for
// deployments sharing the database.
type CalendarObjectRow struct {
	ResourceID         int64      `gorm:"column:RESOURCE_ID;primaryKey;autoIncrement"`
	CalendarResourceID int64      `gorm:"column:CALENDAR_RESOURCE_ID;not null;uniqueIndex:uidx_calendar_object_name"`
	ResourceName       string     `gorm:"column:RESOURCE_NAME;not null;uniqueIndex:uidx_calendar_object_name"`
	ICalendarText      string     `gorm:"column:ICALENDAR_TEXT;not null"`
	ICalendarUID       string     `gorm:"column:ICALENDAR_UID;not null;index"`
	ICalendarType      string     `gorm:"column:ICALENDAR_TYPE;not null"`
	AttachmentsMode    int        `gorm:"column:ATTACHMENTS_MODE;not null"`
	Organizer          string     `gorm:"column:ORGANIZER"`
	RecurrenceMax      *time.Time `gorm:"column:RECURRANCE_MAX"`
	Created            time.Time  `gorm:"column:CREATED;autoCreateTime"`
	Modified           time.Time  `gorm:"column:MODIFIED"`
}

func (CalendarObjectRow) TableName() string { return "CALENDAR_OBJECT" }

// TimeRangeRow is one concrete occurrence within the expansion horizon, or
// the single far-future sentinel of an unbounded series. Rows are owned by
// their CalendarObjectRow and always deleted and rebuilt wholesale.
type TimeRangeRow struct {
	InstanceID               int64     `gorm:"column:INSTANCE_ID;primaryKey;autoIncrement"`
	CalendarResourceID       int64     `gorm:"column:CALENDAR_RESOURCE_ID;not null;index"`
	CalendarObjectResourceID int64     `gorm:"column:CALENDAR_OBJECT_RESOURCE_ID;not null;index"`
	Floating                 bool      `gorm:"column:FLOATING;not null"`
	StartDate                time.Time `gorm:"column:START_DATE;not null"`
	EndDate                  time.Time `gorm:"column:END_DATE;not null"`
	FBType                   int       `gorm:"column:FBTYPE;not null"`
	Transparent              bool      `gorm:"column:TRANSPARENT;not null"`
}

func (TimeRangeRow) TableName() string { return "TIME_RANGE" }

// TransparencyRow is one user's transparency override for one time-range
// instance. Destroyed with its instance.
type TransparencyRow struct {
	TimeRangeInstanceID int64  `gorm:"column:TIME_RANGE_INSTANCE_ID;not null;index"`
	UserID              string `gorm:"column:USER_ID;not null"`
	Transparent         bool   `gorm:"column:TRANSPARENT;not null"`
}

func (TransparencyRow) TableName() string { return "TRANSPARENCY" }

// AttachmentRow is the metadata for one binary attachment; the bytes live at
// a content-addressable filesystem path and this row is the only durable
// pointer to them.
type AttachmentRow struct {
	CalendarObjectResourceID int64     `gorm:"column:CALENDAR_OBJECT_RESOURCE_ID;not null;uniqueIndex:uidx_attachment_path"`
	ContentType              string    `gorm:"column:CONTENT_TYPE;not null"`
	Size                     int64     `gorm:"column:SIZE;not null"`
	MD5                      string    `gorm:"column:MD5;not null"`
	Path                     string    `gorm:"column:PATH;not null;uniqueIndex:uidx_attachment_path"`
	Created                  time.Time `gorm:"column:CREATED;autoCreateTime"`
	Modified                 time.Time `gorm:"column:MODIFIED"`
}

func (AttachmentRow) TableName() string { return "ATTACHMENT" }
