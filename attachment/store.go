// Package attachment stores calendar object attachments: bytes in a
// content-addressable filesystem layout, metadata in the ATTACHMENT table of
// the ambient transaction's database.
package attachment

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/mo"
	"gorm.io/gorm"

	"github.com/cyp0633/calstore/store"
)

// Owner identifies where an object's attachment bytes live: the calendar
// home's owner and the event's UID.
type Owner struct {
	HomeUID  string
	EventUID string
}

// Attachment is the stored metadata of one attachment.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	MD5         string
	Created     time.Time
	Modified    time.Time
}

// Store reads and writes attachments below a single root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates an attachment store rooted at root.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// dirFor derives the directory holding an object's attachments. The owner
// identifier is sharded into two two-character levels to bound directory
// fan-out under large populations.
func (s *Store) dirFor(owner Owner) string {
	home := owner.HomeUID
	shard1, shard2 := home, ""
	if len(home) >= 2 {
		shard1 = home[0:2]
	}
	if len(home) >= 4 {
		shard2 = home[2:4]
	}
	return filepath.Join(s.root, shard1, shard2, home, owner.EventUID)
}

func (s *Store) pathFor(owner Owner, name string) string {
	return filepath.Join(s.dirFor(owner), name)
}

// Create starts writing an attachment. A zero metadata row is inserted
// immediately; content type, size and digest become visible only when the
// returned writer is closed. A writer that is never closed leaves no usable
// metadata behind.
func (s *Store) Create(txn *store.Txn, objectID int64, owner Owner, name, contentType string) (*Writer, error) {
	row := store.AttachmentRow{
		CalendarObjectResourceID: objectID,
		ContentType:              contentType,
		Size:                     0,
		MD5:                      "",
		Path:                     name,
		Modified:                 time.Now().UTC(),
	}
	if err := txn.DB().Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &store.Error{Type: store.ErrAlreadyExists, Message: "attachment already exists", Err: err}
		}
		return nil, fmt.Errorf("failed to insert attachment row: %w", err)
	}
	return newWriter(txn, objectID, s.pathFor(owner, name), name, contentType), nil
}

// Update starts rewriting an existing attachment's bytes; the metadata row is
// refreshed on close.
func (s *Store) Update(txn *store.Txn, objectID int64, owner Owner, name, contentType string) (*Writer, error) {
	if _, err := findRow(txn.DB(), objectID, name); err != nil {
		return nil, err
	}
	return newWriter(txn, objectID, s.pathFor(owner, name), name, contentType), nil
}

// Find returns the metadata of an attachment, or None when no row matches.
// A row whose writer was never closed carries no digest yet and is reported
// absent; metadata becomes visible only at close.
func (s *Store) Find(txn *store.Txn, objectID int64, name string) (mo.Option[Attachment], error) {
	row, err := findRow(txn.DB(), objectID, name)
	if store.IsNotFound(err) {
		return mo.None[Attachment](), nil
	} else if err != nil {
		return mo.None[Attachment](), err
	}
	if row.MD5 == "" {
		return mo.None[Attachment](), nil
	}
	return mo.Some(Attachment{
		Name:        row.Path,
		ContentType: row.ContentType,
		Size:        row.Size,
		MD5:         row.MD5,
		Created:     row.Created,
		Modified:    row.Modified,
	}), nil
}

// List returns the attachment names of one calendar object.
func (s *Store) List(txn *store.Txn, objectID int64) ([]string, error) {
	var rows []store.AttachmentRow
	err := txn.DB().
		Select("PATH").
		Where("CALENDAR_OBJECT_RESOURCE_ID = ?", objectID).
		Order("PATH asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Path)
	}
	return names, nil
}

// Open streams an attachment's bytes. The reader reports io.EOF as a normal
// end of stream. A missing attachment is a not-found storage error.
func (s *Store) Open(txn *store.Txn, objectID int64, owner Owner, name string) (io.ReadCloser, error) {
	if _, err := findRow(txn.DB(), objectID, name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.pathFor(owner, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &store.Error{Type: store.ErrNotFound, Message: "attachment bytes missing", Err: err}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, nil
}

// Remove deletes the metadata row inside the ambient transaction and
// schedules the physical byte removal for after commit, so a rolled-back
// transaction never loses bytes it still logically owns. Removing a
// nonexistent attachment is a no-op.
func (s *Store) Remove(txn *store.Txn, objectID int64, owner Owner, name string) error {
	err := txn.DB().
		Where("CALENDAR_OBJECT_RESOURCE_ID = ? AND PATH = ?", objectID, name).
		Delete(&store.AttachmentRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete attachment row: %w", err)
	}

	path := s.pathFor(owner, name)
	txn.PostCommit(func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove attachment bytes",
				"path", path,
				"error", err)
		}
	})
	return nil
}

func findRow(db *gorm.DB, objectID int64, name string) (*store.AttachmentRow, error) {
	var row store.AttachmentRow
	err := db.Where("CALENDAR_OBJECT_RESOURCE_ID = ? AND PATH = ?", objectID, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &store.Error{Type: store.ErrNotFound, Message: "attachment not found"}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load attachment row: %w", err)
	}
	return &row, nil
}
