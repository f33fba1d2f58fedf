package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/calstore/caldata"
	"github.com/cyp0633/calstore/index"
)

const testCalendarID = int64(7)

func openTestStore(t *testing.T) (*Store, *MemoryNotifier) {
	t.Helper()
	cfg := DefaultConfig
	cfg.DatabasePath = filepath.Join(t.TempDir(), "calstore.db")
	notifier := NewMemoryNotifier()
	st, err := Open(cfg, WithNotifier(notifier))
	require.NoError(t, err)
	return st, notifier
}

func parseFixture(t *testing.T, lines ...string) *caldata.Component {
	t.Helper()
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//calstore//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	comp, err := caldata.ParseComponent(strings.Join(all, "\r\n") + "\r\n")
	require.NoError(t, err)
	return comp
}

// dailyEvent builds a daily series starting tomorrow at 09:00 UTC, so the
// default expansion window always covers it.
func dailyEvent(t *testing.T, count int) (*caldata.Component, time.Time) {
	start := time.Now().UTC().AddDate(0, 0, 1).Truncate(time.Hour)
	comp := parseFixture(t,
		"BEGIN:VEVENT",
		"UID:daily@example.com",
		"DTSTAMP:20240101T000000Z",
		fmt.Sprintf("DTSTART:%s", start.Format("20060102T150405Z")),
		fmt.Sprintf("DTEND:%s", start.Add(time.Hour).Format("20060102T150405Z")),
		fmt.Sprintf("RRULE:FREQ=DAILY;COUNT=%d", count),
		"END:VEVENT",
	)
	return comp, start
}

func TestInsertBoundedRecurringEvent(t *testing.T) {
	st, notifier := openTestStore(t)
	ctx := context.Background()
	comp, start := dailyEvent(t, 3)

	id, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	rows, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.True(t, row.StartDate.Equal(start.AddDate(0, 0, i)), "row %d start", i)
		assert.Equal(t, int(index.FBBusy), row.FBType)
		assert.Equal(t, testCalendarID, row.CalendarResourceID)
		assert.Equal(t, id, row.CalendarObjectResourceID)
	}

	obj, err := st.Object(ctx, testCalendarID, "daily.ics")
	require.NoError(t, err)
	require.NotNil(t, obj.RecurrenceMax, "bounded recurrence records its last start")
	assert.True(t, obj.RecurrenceMax.Equal(start.AddDate(0, 0, 2)))
	assert.Equal(t, "daily@example.com", obj.ICalendarUID)
	assert.Equal(t, "VEVENT", obj.ICalendarType)

	// Both notifications fired exactly once.
	assert.NotEmpty(t, notifier.Revision(testCalendarID, "daily.ics"))
	assert.Equal(t, 1, notifier.ChangeCount(testCalendarID))
}

func TestUpdateRebuildsIndex(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	comp3, _ := dailyEvent(t, 3)
	id, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp3,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	before, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, before, 3)
	oldIDs := make(map[int64]bool)
	for _, row := range before {
		oldIDs[row.InstanceID] = true
	}

	// Drop one occurrence; the whole index is rebuilt, never patched.
	comp2, _ := dailyEvent(t, 2)
	updatedID, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp2,
		Intent:     IntentUpdate,
	})
	require.NoError(t, err)
	assert.Equal(t, id, updatedID)

	after, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, after, 2)
	for _, row := range after {
		assert.False(t, oldIDs[row.InstanceID], "old row identifiers are gone")
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	comp, _ := dailyEvent(t, 3)

	id, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	first, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)

	_, err = st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp,
		Intent:     IntentUpdate,
	})
	require.NoError(t, err)

	second, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)

	// Identical content yields an identical row set, row ids aside.
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].StartDate.Equal(second[i].StartDate))
		assert.True(t, first[i].EndDate.Equal(second[i].EndDate))
		assert.Equal(t, first[i].FBType, second[i].FBType)
		assert.Equal(t, first[i].Transparent, second[i].Transparent)
		assert.Equal(t, first[i].Floating, second[i].Floating)
	}
}

func TestUnboundedSeriesGetsOneSentinel(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().AddDate(0, 0, 1).Truncate(time.Hour)
	comp := parseFixture(t,
		"BEGIN:VEVENT",
		"UID:forever@example.com",
		"DTSTAMP:20240101T000000Z",
		fmt.Sprintf("DTSTART:%s", start.Format("20060102T150405Z")),
		fmt.Sprintf("DTEND:%s", start.Add(time.Hour).Format("20060102T150405Z")),
		"RRULE:FREQ=MONTHLY",
		"END:VEVENT",
	)

	id, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "forever.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	rows, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	var sentinels []TimeRangeRow
	for _, row := range rows {
		if row.StartDate.Equal(index.FarFuture) {
			sentinels = append(sentinels, row)
		}
	}
	require.Len(t, sentinels, 1, "exactly one sentinel row")
	assert.Equal(t, int(index.FBUnknown), sentinels[0].FBType)
	assert.True(t, sentinels[0].Transparent)

	obj, err := st.Object(ctx, testCalendarID, "forever.ics")
	require.NoError(t, err)
	assert.Nil(t, obj.RecurrenceMax, "unbounded recurrence leaves the bound unset")
}

func TestUpsertHorizonExceededAbortsCleanly(t *testing.T) {
	st, notifier := openTestStore(t)
	ctx := context.Background()
	comp, _ := dailyEvent(t, 3)

	_, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID:  testCalendarID,
		Name:        "daily.ics",
		Component:   comp,
		Intent:      IntentInsert,
		ExpandUntil: mo.Some(time.Now().UTC().AddDate(6, 0, 0)),
	})
	require.ErrorIs(t, err, index.ErrHorizonExceeded)

	// Nothing became visible and no notification fired.
	_, err = st.Object(ctx, testCalendarID, "daily.ics")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, notifier.ChangeCount(testCalendarID))
}

func TestUpdateMissingObject(t *testing.T) {
	st, _ := openTestStore(t)
	comp, _ := dailyEvent(t, 3)

	_, err := st.UpsertObject(context.Background(), PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "missing.ics",
		Component:  comp,
		Intent:     IntentUpdate,
	})
	assert.True(t, IsNotFound(err))
}

func TestObjectText(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	comp, _ := dailyEvent(t, 3)

	_, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	text, err := st.ObjectText(ctx, testCalendarID, "daily.ics")
	require.NoError(t, err)
	assert.Contains(t, text, "UID:daily@example.com")

	_, err = st.ObjectText(ctx, testCalendarID, "nope.ics")
	assert.True(t, IsNotFound(err))
}

func TestDeleteObjectRemovesIndex(t *testing.T) {
	st, notifier := openTestStore(t)
	ctx := context.Background()
	comp, _ := dailyEvent(t, 3)

	id, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "daily.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	require.NoError(t, st.DeleteObject(ctx, testCalendarID, "daily.ics"))

	_, err = st.Object(ctx, testCalendarID, "daily.ics")
	assert.True(t, IsNotFound(err))

	rows, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 2, notifier.ChangeCount(testCalendarID))
}

func TestTransparencyRowsFollowInstances(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().AddDate(0, 0, 1).Truncate(time.Hour)
	comp := parseFixture(t,
		"BEGIN:VEVENT",
		"UID:peruser@example.com",
		"DTSTAMP:20240101T000000Z",
		fmt.Sprintf("DTSTART:%s", start.Format("20060102T150405Z")),
		fmt.Sprintf("DTEND:%s", start.Add(time.Hour).Format("20060102T150405Z")),
		"RRULE:FREQ=DAILY;COUNT=2",
		"END:VEVENT",
		"BEGIN:X-CALENDARSERVER-PERUSER",
		"X-CALENDARSERVER-PERUSER-UID:user-a",
		"BEGIN:X-CALENDARSERVER-PERINSTANCE",
		"TRANSP:TRANSPARENT",
		"END:X-CALENDARSERVER-PERINSTANCE",
		"END:X-CALENDARSERVER-PERUSER",
	)

	_, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "peruser.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, st.db.Model(&TransparencyRow{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "one transparency row per instance")

	// Deleting the object cascades to the transparency rows.
	require.NoError(t, st.DeleteObject(ctx, testCalendarID, "peruser.ics"))
	require.NoError(t, st.db.Model(&TransparencyRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFloatingEventRoundTrip(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	// Naive DTSTART: no Z suffix, no TZID. Floating times are carried in
	// UTC so the stored instant matches the naive wall clock.
	comp := parseFixture(t,
		"BEGIN:VEVENT",
		"UID:floating@example.com",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20301114T083000",
		"DTEND:20301114T093000",
		"END:VEVENT",
	)

	id, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "floating.ics",
		Component:  comp,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	rows, err := st.TimeRanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Floating)
	assert.True(t, rows[0].StartDate.Equal(time.Date(2030, 11, 14, 8, 30, 0, 0, time.UTC)))
	assert.True(t, rows[0].EndDate.Equal(time.Date(2030, 11, 14, 9, 30, 0, 0, time.UTC)))

	// A zoned sibling lands non-floating.
	zoned := parseFixture(t,
		"BEGIN:VEVENT",
		"UID:anchored@example.com",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20301114T083000Z",
		"DTEND:20301114T093000Z",
		"END:VEVENT",
	)
	zid, err := st.UpsertObject(ctx, PutObjectRequest{
		CalendarID: testCalendarID,
		Name:       "anchored.ics",
		Component:  zoned,
		Intent:     IntentInsert,
	})
	require.NoError(t, err)

	rows, err = st.TimeRanges(ctx, zid)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Floating)
}
