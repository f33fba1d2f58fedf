package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
	"gorm.io/gorm"

	"github.com/cyp0633/calstore/caldata"
	"github.com/cyp0633/calstore/index"
)

// Intent states whether an upsert creates a new record or rewrites an
// existing one.
type Intent int

const (
	IntentInsert Intent = iota
	IntentUpdate
)

// PutObjectRequest describes one object upsert.
type PutObjectRequest struct {
	// CalendarID is the owning collection.
	CalendarID int64
	// Name is the resource name, unique within the collection.
	Name string
	// Component is the parsed calendar data to store.
	Component *caldata.Component
	// Intent selects insert or update semantics.
	Intent Intent
	// ExpandUntil optionally overrides the default expansion horizon.
	ExpandUntil mo.Option[time.Time]
	// Recovery enables lenient handling of invalid overridden instances,
	// for bulk migration contexts.
	Recovery bool
}

// UpsertObject persists the object record and rebuilds its derived time-range
// index inside one transaction. On update every existing TIME_RANGE row (and
// its TRANSPARENCY rows) is deleted and the index re-inserted from a fresh
// expansion; any single field change can alter the whole instance set, so the
// index is never patched in place.
//
// A horizon or expansion failure aborts the entire operation; no partial
// state becomes visible. The revision and collection notifications fire
// exactly once, after commit.
func (s *Store) UpsertObject(ctx context.Context, req PutObjectRequest) (int64, error) {
	comp := req.Component
	if comp == nil {
		return 0, &Error{Type: ErrInvalidInput, Message: "no component supplied"}
	}

	horizon, err := s.horizon.Horizon(comp, req.ExpandUntil, time.Now())
	if err != nil {
		return 0, err
	}

	result, err := s.indexer.Index(comp, horizon, req.Recovery)
	if err != nil {
		return 0, err
	}

	text, err := comp.Text()
	if err != nil {
		return 0, &Error{Type: ErrInvalidInput, Message: "component does not serialize", Err: err}
	}

	var resourceID int64
	err = s.Transact(ctx, func(txn *Txn) error {
		switch req.Intent {
		case IntentInsert:
			resourceID, err = s.insertObject(txn, req, text, result.RecurrenceMax)
		case IntentUpdate:
			resourceID, err = s.updateObject(txn, req, text, result.RecurrenceMax)
		default:
			return &Error{Type: ErrInvalidInput, Message: fmt.Sprintf("unknown intent %d", req.Intent)}
		}
		if err != nil {
			return err
		}

		if err := insertTimeRanges(txn, req.CalendarID, resourceID, result.Rows); err != nil {
			return err
		}

		txn.PostCommit(func() {
			s.notifier.RevisionAdvanced(req.CalendarID, req.Name)
			s.notifier.CollectionChanged(req.CalendarID)
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("object stored",
		"calendar_id", req.CalendarID,
		"name", req.Name,
		"resource_id", resourceID,
		"instances", len(result.Rows))
	return resourceID, nil
}

func (s *Store) insertObject(txn *Txn, req PutObjectRequest, text string, recurrenceMax mo.Option[time.Time]) (int64, error) {
	row := CalendarObjectRow{
		CalendarResourceID: req.CalendarID,
		ResourceName:       req.Name,
		ICalendarText:      text,
		ICalendarUID:       req.Component.UID(),
		ICalendarType:      req.Component.Kind(),
		AttachmentsMode:    AttachmentsModeWrite,
		Organizer:          req.Component.Organizer(),
		RecurrenceMax:      optTimePtr(recurrenceMax),
		Modified:           time.Now().UTC(),
	}
	if err := txn.DB().Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, &Error{Type: ErrAlreadyExists, Message: "object already exists", Err: err}
		}
		return 0, fmt.Errorf("failed to insert object record: %w", err)
	}
	return row.ResourceID, nil
}

func (s *Store) updateObject(txn *Txn, req PutObjectRequest, text string, recurrenceMax mo.Option[time.Time]) (int64, error) {
	var existing CalendarObjectRow
	err := txn.DB().
		Where("CALENDAR_RESOURCE_ID = ? AND RESOURCE_NAME = ?", req.CalendarID, req.Name).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, &Error{Type: ErrNotFound, Message: "object not found"}
	} else if err != nil {
		return 0, fmt.Errorf("failed to load object record: %w", err)
	}

	updates := map[string]any{
		"ICALENDAR_TEXT":   text,
		"ICALENDAR_UID":    req.Component.UID(),
		"ICALENDAR_TYPE":   req.Component.Kind(),
		"ATTACHMENTS_MODE": AttachmentsModeWrite,
		"ORGANIZER":        req.Component.Organizer(),
		"RECURRANCE_MAX":   optTimePtr(recurrenceMax),
		"MODIFIED":         time.Now().UTC(),
	}
	if err := txn.DB().Model(&CalendarObjectRow{}).
		Where("RESOURCE_ID = ?", existing.ResourceID).
		Updates(updates).Error; err != nil {
		return 0, fmt.Errorf("failed to update object record: %w", err)
	}

	// Wipe the existing time-range rows; the index is rebuilt below.
	if err := deleteTimeRanges(txn, existing.ResourceID); err != nil {
		return 0, err
	}
	return existing.ResourceID, nil
}

func insertTimeRanges(txn *Txn, calendarID, resourceID int64, rows []index.InstanceRow) error {
	for _, r := range rows {
		tr := TimeRangeRow{
			CalendarResourceID:       calendarID,
			CalendarObjectResourceID: resourceID,
			Floating:                 r.Floating,
			StartDate:                r.Start,
			EndDate:                  r.End,
			FBType:                   int(r.FBType),
			Transparent:              r.Transparent,
		}
		if err := txn.DB().Create(&tr).Error; err != nil {
			return fmt.Errorf("failed to insert time-range row: %w", err)
		}
		for _, pu := range r.PerUser {
			trans := TransparencyRow{
				TimeRangeInstanceID: tr.InstanceID,
				UserID:              pu.UserID,
				Transparent:         pu.Transparent,
			}
			if err := txn.DB().Create(&trans).Error; err != nil {
				return fmt.Errorf("failed to insert transparency row: %w", err)
			}
		}
	}
	return nil
}

// deleteTimeRanges removes every index row of an object, transparency rows
// first since SQLite is not enforcing the cascade for us.
func deleteTimeRanges(txn *Txn, resourceID int64) error {
	instanceIDs := txn.DB().Model(&TimeRangeRow{}).
		Select("INSTANCE_ID").
		Where("CALENDAR_OBJECT_RESOURCE_ID = ?", resourceID)
	if err := txn.DB().
		Where("TIME_RANGE_INSTANCE_ID IN (?)", instanceIDs).
		Delete(&TransparencyRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete transparency rows: %w", err)
	}
	if err := txn.DB().
		Where("CALENDAR_OBJECT_RESOURCE_ID = ?", resourceID).
		Delete(&TimeRangeRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete time-range rows: %w", err)
	}
	return nil
}

func optTimePtr(o mo.Option[time.Time]) *time.Time {
	if t, ok := o.Get(); ok {
		return &t
	}
	return nil
}

// ObjectText returns the canonical iCalendar text of a stored object.
func (s *Store) ObjectText(ctx context.Context, calendarID int64, name string) (string, error) {
	var row CalendarObjectRow
	err := s.db.WithContext(ctx).
		Select("ICALENDAR_TEXT").
		Where("CALENDAR_RESOURCE_ID = ? AND RESOURCE_NAME = ?", calendarID, name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", &Error{Type: ErrNotFound, Message: "object not found"}
	} else if err != nil {
		return "", fmt.Errorf("failed to read object text: %w", err)
	}
	return row.ICalendarText, nil
}

// Object loads a stored object record.
func (s *Store) Object(ctx context.Context, calendarID int64, name string) (*CalendarObjectRow, error) {
	var row CalendarObjectRow
	err := s.db.WithContext(ctx).
		Where("CALENDAR_RESOURCE_ID = ? AND RESOURCE_NAME = ?", calendarID, name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &Error{Type: ErrNotFound, Message: "object not found"}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load object record: %w", err)
	}
	return &row, nil
}

// TimeRanges returns the current index rows of an object, ordered by start.
func (s *Store) TimeRanges(ctx context.Context, resourceID int64) ([]TimeRangeRow, error) {
	var rows []TimeRangeRow
	err := s.db.WithContext(ctx).
		Where("CALENDAR_OBJECT_RESOURCE_ID = ?", resourceID).
		Order("START_DATE asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load time-range rows: %w", err)
	}
	return rows, nil
}

// DeleteObject removes an object record together with its derived index.
func (s *Store) DeleteObject(ctx context.Context, calendarID int64, name string) error {
	err := s.Transact(ctx, func(txn *Txn) error {
		var row CalendarObjectRow
		err := txn.DB().
			Where("CALENDAR_RESOURCE_ID = ? AND RESOURCE_NAME = ?", calendarID, name).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Error{Type: ErrNotFound, Message: "object not found"}
		} else if err != nil {
			return fmt.Errorf("failed to load object record: %w", err)
		}

		if err := deleteTimeRanges(txn, row.ResourceID); err != nil {
			return err
		}
		if err := txn.DB().Delete(&CalendarObjectRow{}, row.ResourceID).Error; err != nil {
			return fmt.Errorf("failed to delete object record: %w", err)
		}

		txn.PostCommit(func() {
			s.notifier.RevisionAdvanced(calendarID, name)
			s.notifier.CollectionChanged(calendarID)
		})
		return nil
	})
	return err
}
