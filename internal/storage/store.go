// Package storage keeps finished runs on disk: one directory per run with
// its metadata and time history, plus the displacement tables of the static
// convergence study.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/coupling"
	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/viv"
)

const (
	metadataFile = "metadata.json"
	historyFile  = "history.csv"

	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Backend   string             `json:"backend"`
	Timestamp time.Time          `json:"timestamp"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	Steps     int                `json:"steps"`
	Planned   int                `json:"planned"`
	Elapsed   float64            `json:"elapsed_s"`
	Status    string             `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Error     string             `json:"error,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
	Config    *config.Config     `json:"config"`
	Constants *riser.Constants   `json:"constants"`
}

// Save stores a run. A partial result of an aborted run is kept with the
// abort reason and the error text.
func (s *Store) Save(cfg *config.Config, c riser.Constants, res *coupling.Result, runErr error) (string, error) {
	if res == nil {
		return "", errors.New("storage: no result to save")
	}
	now := time.Now()
	runID, runDir, err := s.newRunDir(cfg.Name, now)
	if err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Name:      cfg.Name,
		Backend:   cfg.Backend,
		Timestamp: now,
		Dt:        c.Dt,
		Duration:  c.Total,
		Steps:     res.Steps,
		Planned:   res.Planned,
		Elapsed:   res.Elapsed.Seconds(),
		Status:    StatusFinished,
		Metrics:   finite(res.Metrics),
		Config:    cfg,
		Constants: &c,
	}
	if res.Aborted || runErr != nil {
		meta.Status = StatusAborted
		meta.Reason = res.Reason
		if meta.Reason == "" {
			meta.Reason = viv.AbortReason(runErr)
		}
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, historyFile))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteHistoryCSV(f, res.History); err != nil {
		return "", err
	}
	return runID, f.Close()
}

// finite drops metrics that JSON cannot carry.
func finite(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

func (s *Store) newRunDir(name string, now time.Time) (string, string, error) {
	if err := s.Init(); err != nil {
		return "", "", err
	}
	if name == "" {
		name = "run"
	}
	base := fmt.Sprintf("%s_%d", name, now.Unix())
	for i := 1; ; i++ {
		id := base
		if i > 1 {
			id = fmt.Sprintf("%s_%d", base, i)
		}
		dir := filepath.Join(s.baseDir, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return id, dir, nil
		}
		if !os.IsExist(err) {
			return "", "", err
		}
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

// List returns the stored runs, oldest first.
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
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadHistory(runID string) (*viv.TimeHistory, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, historyFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHistoryCSV(f)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteHistoryCSV writes the committed rows of h.
func WriteHistoryCSV(w io.Writer, h *viv.TimeHistory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(viv.Columns()); err != nil {
		return err
	}
	for i := 0; i < h.Len(); i++ {
		row := []string{format(h.Time[i]), format(h.P[i]), format(h.Q[i]), format(h.DispX[i]), format(h.DispY[i])}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadHistoryCSV reads a history written by WriteHistoryCSV. Columns are
// matched by header name.
func ReadHistoryCSV(r io.Reader) (*viv.TimeHistory, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("storage: empty history file")
	}

	cols := make(map[string]int)
	for i, name := range records[0] {
		cols[name] = i
	}
	idx := make([]int, 0, 5)
	for _, name := range viv.Columns() {
		i, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("storage: history has no %q column", name)
		}
		idx = append(idx, i)
	}

	h := viv.NewTimeHistory(len(records) - 1)
	for n, rec := range records[1:] {
		var v [5]float64
		for k, i := range idx {
			if v[k], err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("storage: row %d: %w", n+1, err)
			}
		}
		if err := h.Record(n, v[0], v[1], v[2], v[3], v[4]); err != nil {
			return nil, err
		}
	}
	return h, nil
}
