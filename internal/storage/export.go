package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/vivsim/internal/viv"
)

type ExportData struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Backend  string             `json:"backend"`
	Dt       float64            `json:"dt"`
	Duration float64            `json:"duration"`
	Steps    int                `json:"steps"`
	Status   string             `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	Time     []float64          `json:"time"`
	P        []float64          `json:"p"`
	Q        []float64          `json:"q"`
	DispX    []float64          `json:"disp_x"`
	DispY    []float64          `json:"disp_y"`
	Metrics  map[string]float64 `json:"metrics"`
}

// ExportJSON writes a run and its committed history as one JSON document.
func ExportJSON(w io.Writer, meta *RunMetadata, h *viv.TimeHistory) error {
	c := h.Committed()
	data := ExportData{
		ID:       meta.ID,
		Name:     meta.Name,
		Backend:  meta.Backend,
		Dt:       meta.Dt,
		Duration: meta.Duration,
		Steps:    c.Len(),
		Status:   meta.Status,
		Reason:   meta.Reason,
		Time:     c.Time,
		P:        c.P,
		Q:        c.Q,
		DispX:    c.DispX,
		DispY:    c.DispY,
		Metrics:  meta.Metrics,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
