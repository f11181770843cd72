// Package digest stores, parses and generates the daily markdown digest.
package digest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DateLayout is the date format used in digest file names.
const DateLayout = "2006-01-02"

const (
	currentName = "digest.md"
	datedPrefix = "digest-"
	datedSuffix = ".md"
)

// ErrNotFound is returned when a digest does not exist.
var ErrNotFound = errors.New("digest not found")

// Entry describes one dated digest file.
type Entry struct {
	Date      string    `json:"date"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Digest is one digest document.
type Digest struct {
	Date      string    `json:"date,omitempty"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps digests in a directory as digest-YYYY-MM-DD.md files plus
// digest.md, which holds the newest dated one.
type Store struct {
	dir string
}

// NewStore returns a Store over dir. The directory is created on first Write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid digest date %q: want YYYY-MM-DD", date)
	}
	return t, nil
}

// List returns the dated digests, newest first.
func (s *Store) List() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, datedPrefix) || !strings.HasSuffix(name, datedSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, datedPrefix), datedSuffix)
		if _, err := ParseDate(date); err != nil {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Date: date, Size: info.Size(), UpdatedAt: info.ModTime().UTC()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date > entries[j].Date })
	return entries, nil
}

// Get reads the digest for date.
func (s *Store) Get(date string) (*Digest, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	d, err := s.read(datedPrefix + date + datedSuffix)
	if err != nil {
		return nil, err
	}
	d.Date = date
	return d, nil
}

// Latest reads the newest dated digest.
func (s *Store) Latest() (*Digest, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return s.Get(entries[0].Date)
}

// Current reads digest.md.
func (s *Store) Current() (*Digest, error) {
	return s.read(currentName)
}

// Write stores content as the digest for date. digest.md is replaced only
// when date is not older than every stored digest, so a backfill leaves the
// current digest alone.
func (s *Store) Write(date, content string) (*Digest, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create digest dir: %w", err)
	}

	names := []string{datedPrefix + date + datedSuffix}
	if len(entries) == 0 || date >= entries[0].Date {
		names = append(names, currentName)
	}
	for _, name := range names {
		if err := writeAtomic(filepath.Join(s.dir, name), []byte(content)); err != nil {
			return nil, err
		}
	}
	return s.Get(date)
}

func (s *Store) read(name string) (*Digest, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read digest %s: %w", name, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat digest %s: %w", name, err)
	}
	return &Digest{Content: string(data), UpdatedAt: info.ModTime().UTC()}, nil
}

// writeAtomic replaces path via a temp file and rename so readers never see
// a partial digest.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".digest-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
