package pipeline

// Windows is the sliding-window view of one split. Window i covers rows
// [i, i+seq) and its target is the target of row i+seq-1.
type Windows struct {
	x   [][]float64
	y   []float64
	seq int
}

// NewWindows builds windows of length seq over x and y.
func NewWindows(x [][]float64, y []float64, seq int) *Windows {
	return &Windows{x: x, y: y, seq: seq}
}

// Len returns the number of windows: rows-seq+1, or zero when the split
// has fewer rows than seq.
func (w *Windows) Len() int {
	n := len(w.x) - w.seq + 1
	if n < 0 || w.seq < 1 {
		return 0
	}
	return n
}

// At returns the inputs and target of window i.
func (w *Windows) At(i int) ([][]float64, float64) {
	return w.x[i : i+w.seq], w.y[i+w.seq-1]
}

// Targets returns the targets of every window in order.
func (w *Windows) Targets() []float64 {
	out := make([]float64, w.Len())
	for i := range out {
		out[i] = w.y[i+w.seq-1]
	}
	return out
}
