package viv

import "fmt"

// TimeHistory holds the per-step results of a run in buffers sized once to
// the number of steps. Slots are written once, in step order.
type TimeHistory struct {
	Time  []float64
	P     []float64
	Q     []float64
	DispX []float64 // normalised by outer diameter
	DispY []float64 // normalised by outer diameter
	n     int
}

func NewTimeHistory(steps int) *TimeHistory {
	if steps < 0 {
		steps = 0
	}
	return &TimeHistory{
		Time:  make([]float64, steps),
		P:     make([]float64, steps),
		Q:     make([]float64, steps),
		DispX: make([]float64, steps),
		DispY: make([]float64, steps),
	}
}

// Cap returns the number of allocated slots.
func (h *TimeHistory) Cap() int { return len(h.Time) }

// Len returns the number of committed slots.
func (h *TimeHistory) Len() int { return h.n }

// Record commits slot i. Slots must be committed in order.
func (h *TimeHistory) Record(i int, t, p, q, dispX, dispY float64) error {
	if i != h.n {
		return fmt.Errorf("history: slot %d written out of order (next is %d)", i, h.n)
	}
	if i >= len(h.Time) {
		return fmt.Errorf("history: slot %d exceeds capacity %d", i, len(h.Time))
	}
	h.Time[i] = t
	h.P[i] = p
	h.Q[i] = q
	h.DispX[i] = dispX
	h.DispY[i] = dispY
	h.n++
	return nil
}

// Committed returns a copy truncated to the committed slots.
func (h *TimeHistory) Committed() *TimeHistory {
	n := h.n
	c := &TimeHistory{
		Time:  append([]float64(nil), h.Time[:n]...),
		P:     append([]float64(nil), h.P[:n]...),
		Q:     append([]float64(nil), h.Q[:n]...),
		DispX: append([]float64(nil), h.DispX[:n]...),
		DispY: append([]float64(nil), h.DispY[:n]...),
		n:     n,
	}
	return c
}

// Series returns the named column of the committed slots.
func (h *TimeHistory) Series(name string) ([]float64, bool) {
	switch name {
	case "time", "t":
		return h.Time[:h.n], true
	case "p":
		return h.P[:h.n], true
	case "q":
		return h.Q[:h.n], true
	case "disp_x", "x":
		return h.DispX[:h.n], true
	case "disp_y", "y":
		return h.DispY[:h.n], true
	}
	return nil, false
}

// Columns lists the series names in storage order.
func Columns() []string {
	return []string{"time", "p", "q", "disp_x", "disp_y"}
}
