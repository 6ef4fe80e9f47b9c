package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store owns a base directory of run directories.
type Store struct {
	baseDir string
	clock   clockwork.Clock
}

// New creates a store rooted at baseDir. A nil clock uses real time.
func New(baseDir string, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{baseDir: baseDir, clock: clock}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) Now() time.Time { return s.clock.Now() }

// TurbulenceRunName is "<L>_<N>_<iterations>_<vratio>".
func TurbulenceRunName(L float64, n, iterations int, vratio float64) string {
	return fmt.Sprintf("%g_%d_%d_%g", L, n, iterations, vratio)
}

// RainfallRunName is "<name> - <id> -- YYYYMMDD_HHMMSS -- <uuid4>". Several
// stations collapse to MULTI-STATIONS.
func RainfallRunName(stations []string, ids []string, at time.Time) string {
	short := uuid.NewString()[:4]
	stamp := at.Format("20060102_150405")
	if len(stations) != 1 || len(ids) != 1 {
		return fmt.Sprintf("MULTI-STATIONS -- %s -- %s", stamp, short)
	}
	return fmt.Sprintf("%s - %s -- %s -- %s", stations[0], ids[0], stamp, short)
}

// EconexRunName is "run_YYYYMMDD_HHMMSS".
func EconexRunName(at time.Time) string {
	return "run_" + at.Format("20060102_150405")
}

// Run is one output directory.
type Run struct {
	ID      string
	Dir     string
	Started time.Time
}

// CreateRun makes baseDir/name and any missing parents. An existing
// directory is reused.
func (s *Store) CreateRun(name string) (*Run, error) {
	dir := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run %s: %w", name, err)
	}
	return &Run{ID: name, Dir: dir, Started: s.clock.Now()}, nil
}

// Open returns an existing run. Started comes from its metadata when
// present.
func (s *Store) Open(runID string) (*Run, error) {
	dir := filepath.Join(s.baseDir, runID)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open run %s: %w", runID, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open run %s: not a directory", runID)
	}
	run := &Run{ID: runID, Dir: dir, Started: info.ModTime()}
	if meta, err := s.Load(runID); err == nil {
		run.Started = meta.Start
	}
	return run, nil
}

// Path joins rel onto the run directory.
func (r *Run) Path(rel ...string) string {
	return filepath.Join(append([]string{r.Dir}, rel...)...)
}

// Sub is a view of the run rooted at its subdirectory rel. It shares the
// run's ID.
func (r *Run) Sub(rel string) *Run {
	return &Run{ID: r.ID, Dir: r.Path(rel), Started: r.Started}
}

func (r *Run) create(rel string) (*os.File, error) {
	path := r.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Start.Before(runs[j].Start) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, MetadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", runID, err)
	}
	return &meta, nil
}
