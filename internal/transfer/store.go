// Package transfer keeps the metadata of announced file transfers for the
// life of the process.
package transfer

import (
	"sync"

	"github.com/google/uuid"
)

// Info describes one announced transfer. It is never mutated after Create.
type Info struct {
	FileName string `json:"file_name"`
	FileSize uint64 `json:"file_size"`
	// SenderID is the sender's connection id at the time of announcement.
	SenderID string `json:"sender_id"`
}

// Store is safe for concurrent use. Entries are never removed.
type Store struct {
	mu        sync.RWMutex
	transfers map[string]Info

	newID func() string
}

func NewStore() *Store {
	return &Store{
		transfers: make(map[string]Info),
		newID:     uuid.NewString,
	}
}

// Create records info under a freshly generated id and returns the id.
func (s *Store) Create(info Info) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := s.newID()
		if _, exists := s.transfers[id]; exists {
			continue
		}
		s.transfers[id] = info
		return id
	}
}

func (s *Store) Get(id string) (Info, bool) {
	s.mu.RLock()
	info, ok := s.transfers[id]
	s.mu.RUnlock()
	return info, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transfers)
}
