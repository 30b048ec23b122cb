package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"hwbot/internal/homework"
	"hwbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.state.json    (snapshot, replaced atomically)
//   - <prefix>.journal.jsonl (append-only JSON Lines)
//
// The journal is compacted to the newest entries once it grows past twice the cap.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	statePath   string
	journalPath string
	journalFile *os.File

	journal []JournalEntry
	max     int
	lines   int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:         log,
		statePath:   prefix + ".state.json",
		journalPath: prefix + ".journal.jsonl",
		max:         journalMax(cfg),
	}

	entries, err := readJournal(s.journalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay failed", logx.Err(err))
	}
	s.lines = len(entries)
	s.journal = tail(entries, s.max)

	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) LoadState(ctx context.Context) (homework.State, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return homework.State{}, false, nil
	}
	if err != nil {
		return homework.State{}, false, err
	}
	var st homework.State
	if err := json.Unmarshal(b, &st); err != nil {
		return homework.State{}, false, err
	}
	return st, true, nil
}

func (s *fileStore) SaveState(ctx context.Context, st homework.State) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.statePath, b)
}

func (s *fileStore) AppendJournal(ctx context.Context, e JournalEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrDisabled
	}
	if err := json.NewEncoder(s.journalFile).Encode(e); err != nil {
		return err
	}
	s.lines++
	s.journal = append(s.journal, e)
	if len(s.journal) > s.max {
		s.journal = s.journal[len(s.journal)-s.max:]
	}
	if s.lines > 2*s.max {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrDisabled
	}
	return tail(s.journal, limit), nil
}

func (s *fileStore) compactLocked() error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, e := range s.journal {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	if err := writeFileAtomic(s.journalPath, []byte(buf.String())); err != nil {
		return err
	}
	// The old descriptor points at the replaced inode.
	_ = s.journalFile.Close()
	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.journalFile = nil
		return err
	}
	s.journalFile = jf
	s.lines = len(s.journal)
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJournal(path string) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []JournalEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
