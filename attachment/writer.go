package attachment

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"time"

	"github.com/cyp0633/calstore/store"
)

// Writer is the write sink for one attachment. Bytes are buffered in memory
// and fed through an incremental MD5; nothing touches disk or the metadata
// row until Close.
type Writer struct {
	txn         *store.Txn
	objectID    int64
	path        string
	name        string
	contentType string
	buf         bytes.Buffer
	digest      hash.Hash
	closed      bool
}

func newWriter(txn *store.Txn, objectID int64, path, name, contentType string) *Writer {
	return &Writer{
		txn:         txn,
		objectID:    objectID,
		path:        path,
		name:        name,
		contentType: contentType,
		digest:      md5.New(),
	}
}

// Write buffers data and updates the running digest.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("attachment writer already closed")
	}
	w.digest.Write(p)
	return w.buf.Write(p)
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return int64(w.buf.Len())
}

// MD5 returns the hex digest of the bytes written so far.
func (w *Writer) MD5() string {
	return hex.EncodeToString(w.digest.Sum(nil))
}

// Close persists the buffered bytes at the derived path and fills in the
// metadata row in one statement keyed by path. Concurrent writers to the same
// name race at the filesystem level; the last close wins for both bytes and
// metadata.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := os.MkdirAll(filepath.Dir(w.path), 0o700); err != nil {
		return fmt.Errorf("failed to create attachment directory: %w", err)
	}
	if err := os.WriteFile(w.path, w.buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write attachment bytes: %w", err)
	}

	err := w.txn.DB().Model(&store.AttachmentRow{}).
		Where("CALENDAR_OBJECT_RESOURCE_ID = ? AND PATH = ?", w.objectID, w.name).
		Updates(map[string]any{
			"CONTENT_TYPE": w.contentType,
			"SIZE":         w.Size(),
			"MD5":          w.MD5(),
			"MODIFIED":     time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update attachment row: %w", err)
	}
	return nil
}
