package storage

import (
	"context"
	"sync"

	"hwbot/internal/homework"
)

// memoryStore keeps everything in process memory.
type memoryStore struct {
	mu      sync.Mutex
	state   homework.State
	saved   bool
	journal []JournalEntry
	max     int
	closed  bool
}

// NewMemory returns an in-memory Store keeping at most journalMax journal entries.
func NewMemory(journalMax int) Store {
	if journalMax <= 0 {
		journalMax = DefaultJournalMax
	}
	return &memoryStore{max: journalMax}
}

func (s *memoryStore) LoadState(ctx context.Context) (homework.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return homework.State{}, false, ErrDisabled
	}
	return cloneState(s.state), s.saved, nil
}

func (s *memoryStore) SaveState(ctx context.Context, st homework.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.state = cloneState(st)
	s.saved = true
	return nil
}

func (s *memoryStore) AppendJournal(ctx context.Context, e JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.journal = append(s.journal, e)
	if len(s.journal) > s.max {
		s.journal = s.journal[len(s.journal)-s.max:]
	}
	return nil
}

func (s *memoryStore) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDisabled
	}
	return tail(s.journal, limit), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func cloneState(st homework.State) homework.State {
	if st.Last != nil {
		cp := *st.Last
		st.Last = &cp
	}
	return st
}
