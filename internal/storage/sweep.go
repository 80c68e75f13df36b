package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/vivsim/internal/viv"
)

// CenterLabel marks the midspan record that closes a displacement table.
const CenterLabel = "Center"

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// CaseName is the directory and file stem of one convergence case.
func CaseName(elements int, nlgeom bool) string {
	return fmt.Sprintf("nel_%d_nlgeom_%s", elements, onOff(nlgeom))
}

// NewSweep creates a timestamped directory for a convergence study.
func (s *Store) NewSweep() (string, error) {
	_, dir, err := s.newRunDir("sweep", time.Now())
	return dir, err
}

// SaveCase writes displacements_<case>.csv under dir/<case>/ and returns
// its path.
func SaveCase(dir string, elements int, nlgeom bool, rows []viv.NodalDisplacement, center viv.NodalDisplacement) (string, error) {
	name := CaseName(elements, nlgeom)
	caseDir := filepath.Join(dir, name)
	if err := os.MkdirAll(caseDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(caseDir, "displacements_"+name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteDisplacements(f, rows, center); err != nil {
		return "", err
	}
	return path, f.Close()
}

// WriteDisplacements writes Node,UX,UY,UZ rows followed by the center row.
func WriteDisplacements(w io.Writer, rows []viv.NodalDisplacement, center viv.NodalDisplacement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Node", "UX", "UY", "UZ"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{strconv.Itoa(r.Node), format(r.UX), format(r.UY), format(r.UZ)}); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{CenterLabel, format(center.UX), format(center.UY), format(center.UZ)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ReadCenter returns the midspan record of a displacement table.
func ReadCenter(r io.Reader) (viv.NodalDisplacement, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return viv.NodalDisplacement{}, err
	}
	for _, rec := range records {
		if len(rec) < 4 || rec[0] != CenterLabel {
			continue
		}
		var u [3]float64
		for k := range u {
			if u[k], err = strconv.ParseFloat(rec[k+1], 64); err != nil {
				return viv.NodalDisplacement{}, fmt.Errorf("storage: center row: %w", err)
			}
		}
		return viv.NodalDisplacement{UX: u[0], UY: u[1], UZ: u[2]}, nil
	}
	return viv.NodalDisplacement{}, fmt.Errorf("storage: no %s row", CenterLabel)
}
