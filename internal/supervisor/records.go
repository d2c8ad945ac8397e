package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Record points at a server process started by the harness. Records are
// hints: liveness and the endpoint are always re-checked before trusting one.
type Record struct {
	Name    string
	PID     int
	LogPath string
}

// RecordStore keeps one <name>.pid file per logical server.
type RecordStore struct {
	pidDir string
	logDir string
}

// NewRecordStore creates a store over pidDir; log paths are derived from logDir.
func NewRecordStore(pidDir, logDir string) *RecordStore {
	return &RecordStore{pidDir: pidDir, logDir: logDir}
}

// EnsureDir creates the PID and log directories if they are missing.
func (s *RecordStore) EnsureDir() error {
	if err := os.MkdirAll(s.pidDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(s.logDir, 0755)
}

func (s *RecordStore) path(name string) string {
	return filepath.Join(s.pidDir, name+".pid")
}

// LogPath is where the server's combined output goes.
func (s *RecordStore) LogPath(name string) string {
	return filepath.Join(s.logDir, name+".log")
}

// Load returns the record for name. Unparseable files are removed and
// reported as missing.
func (s *RecordStore) Load(name string) (Record, bool) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return Record{}, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		_ = os.Remove(s.path(name))
		return Record{}, false
	}
	return Record{Name: name, PID: pid, LogPath: s.LogPath(name)}, true
}

// Save writes rec through a temp file and rename, so readers never see a
// partial record. Any previous record for the same server is replaced.
func (s *RecordStore) Save(rec Record) error {
	if err := os.MkdirAll(s.pidDir, 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.pidDir, "."+rec.Name+".pid-*")
	if err != nil {
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(rec.PID) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(rec.Name)); err != nil {
		return fmt.Errorf("failed to write pid record: %w", err)
	}
	return nil
}

// Delete removes the record for name. Missing records are not an error.
func (s *RecordStore) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete pid record: %w", err)
	}
	return nil
}

// List returns every valid record, sorted by name.
func (s *RecordStore) List() ([]Record, error) {
	entries, err := os.ReadDir(s.pidDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pid directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pid" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".pid")
		if rec, ok := s.Load(name); ok {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}
