package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/etnz/holdings"
	"github.com/rs/zerolog"
)

const (
	ledgerExt = ".jsonl"
	ratesFile = "rates.json"
)

// Files keeps each position as a JSONL file within a base directory: a
// header line then one event per line. Each position is stored as <id>.jsonl.
//
// Files are replaced by writing a temporary file in the same directory and
// renaming it, so a reader sees either the old or the new content.
type Files struct {
	baseDir string
	log     zerolog.Logger
	mu      sync.RWMutex
}

var _ holdings.Store = (*Files)(nil)

func NewFiles(baseDir string, log zerolog.Logger) (*Files, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create store directory %q: %w", baseDir, err)
	}
	return &Files{baseDir: baseDir, log: log.With().Str("store", "files").Logger()}, nil
}

func (s *Files) CreatePosition(ctx context.Context, rec holdings.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.pathFor(rec.Position.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", holdings.ErrPositionExists, rec.Position.ID)
	}
	rec.Version = 1
	return s.writeRecord(path, rec)
}

func (s *Files) LoadPosition(ctx context.Context, id string) (holdings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.pathFor(id)
	if err != nil {
		return holdings.Record{}, err
	}
	return s.readRecord(path, id)
}

func (s *Files) ListPositions(ctx context.Context) ([]holdings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var res []holdings.Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ledgerExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, ledgerExt)
		rec, err := s.readRecord(filepath.Join(s.baseDir, name), id)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	slices.SortFunc(res, func(a, b holdings.Record) int { return strings.Compare(a.Position.ID, b.Position.ID) })
	return res, nil
}

// Commit checks the version on disk and replaces the file. The version check
// only guards writers of this process: two processes sharing a directory
// must not write the same position.
func (s *Files) Commit(ctx context.Context, c holdings.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Position.ID
	path, err := s.pathFor(id)
	if err != nil {
		return err
	}
	cur, err := s.readRecord(path, id)
	if err != nil {
		return fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, err)
	}
	if cur.Version != c.BaseVersion {
		return conflict(id, c.BaseVersion, cur.Version)
	}
	rec := holdings.Record{
		Position:  c.Position,
		Events:    c.Events,
		Aggregate: c.Aggregate,
		Version:   cur.Version + 1,
	}
	if err := s.writeRecord(path, rec); err != nil {
		return fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, err)
	}
	return nil
}

func (s *Files) SaveRates(ctx context.Context, t *holdings.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return s.replace(filepath.Join(s.baseDir, ratesFile), func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

func (s *Files) LoadRates(ctx context.Context) (*holdings.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, ratesFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := new(holdings.RateTable)
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("could not decode saved rates: %w", err)
	}
	return t, nil
}

func (s *Files) Close() error { return nil }

func (s *Files) readRecord(path, id string) (holdings.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return holdings.Record{}, fmt.Errorf("%w: %q", holdings.ErrPositionNotFound, id)
	}
	if err != nil {
		return holdings.Record{}, fmt.Errorf("error opening ledger file %q: %w", path, err)
	}
	defer f.Close()

	rec, err := holdings.DecodeRecord(f)
	if err != nil {
		return holdings.Record{}, fmt.Errorf("error decoding ledger file %q: %w", path, err)
	}
	return rec, nil
}

func (s *Files) writeRecord(path string, rec holdings.Record) error {
	return s.replace(path, func(f *os.File) error {
		return holdings.EncodeRecord(f, rec)
	})
}

// replace writes a temporary file with write and renames it over path.
func (s *Files) replace(path string, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file for %q: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.log.Warn().Err(rmErr).Str("file", tmp.Name()).Msg("could not remove temporary file")
			}
		}
	}()
	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not replace %q: %w", path, err)
	}
	return nil
}

// pathFor rejects ids that would escape the base directory.
func (s *Files) pathFor(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: id %q is not usable as a file name", holdings.ErrInvalidPosition, id)
	}
	return filepath.Join(s.baseDir, id+ledgerExt), nil
}
