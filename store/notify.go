package store

import (
	"sync"

	"github.com/google/uuid"
)

// Notifier receives the change signals fired exactly once per successful
// object mutation, after the data is durable: a revision-token advance for
// the modified resource and a collection-level change notification.
type Notifier interface {
	RevisionAdvanced(calendarID int64, resourceName string)
	CollectionChanged(calendarID int64)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) RevisionAdvanced(int64, string) {}
func (NopNotifier) CollectionChanged(int64)        {}

// MemoryNotifier tracks revision tokens in memory, issuing a fresh UUID token
// per advance. Useful for tests and single-process embedders.
type MemoryNotifier struct {
	mu        sync.Mutex
	revisions map[int64]map[string]string
	syncToken map[int64]string
	changes   map[int64]int
}

// NewMemoryNotifier creates an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		revisions: make(map[int64]map[string]string),
		syncToken: make(map[int64]string),
		changes:   make(map[int64]int),
	}
}

func (n *MemoryNotifier) RevisionAdvanced(calendarID int64, resourceName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.revisions[calendarID] == nil {
		n.revisions[calendarID] = make(map[string]string)
	}
	n.revisions[calendarID][resourceName] = uuid.NewString()
}

func (n *MemoryNotifier) CollectionChanged(calendarID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncToken[calendarID] = uuid.NewString()
	n.changes[calendarID]++
}

// Revision returns the current revision token of a resource, or "".
func (n *MemoryNotifier) Revision(calendarID int64, resourceName string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.revisions[calendarID][resourceName]
}

// SyncToken returns the current collection token, or "".
func (n *MemoryNotifier) SyncToken(calendarID int64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.syncToken[calendarID]
}

// ChangeCount returns how many collection-change notifications fired.
func (n *MemoryNotifier) ChangeCount(calendarID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changes[calendarID]
}
