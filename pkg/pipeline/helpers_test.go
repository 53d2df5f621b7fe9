package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/dataset"
)

// sineCSV returns n rows of a timestamp, one feature and a target that
// depends on it.
func sineCSV(n int) string {
	var b strings.Builder
	b.WriteString("ts,x,y\n")
	for i := range n {
		x := math.Sin(float64(i) / 8)
		y := 2*x + 0.5*math.Cos(float64(i)/5) + 10
		fmt.Fprintf(&b, "2024-01-01T%05d,%.6f,%.6f\n", i, x, y)
	}
	return b.String()
}

func sineTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	tbl, err := dataset.Read(strings.NewReader(sineCSV(n)))
	require.NoError(t, err)
	return tbl
}

var sineColumns = []core.ColumnMeta{
	{Name: "ts", Role: core.RoleTimestamp},
	{Name: "x", Role: core.RoleFeature, Numeric: true},
	{Name: "y", Role: core.RoleTarget, Numeric: true},
}

// recordingProgress records progress writes and can report a stop.
type recordingProgress struct {
	mu        sync.Mutex
	started   bool
	total     int
	device    string
	epochs    []EpochStats
	stopAfter int // CheckStopped fails once this many epochs are recorded; 0 never
}

func (p *recordingProgress) Start(_ context.Context, total int, device string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started, p.total, p.device = true, total, device
	return nil
}

func (p *recordingProgress) Epoch(_ context.Context, s EpochStats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epochs = append(p.epochs, s)
	return nil
}

func (p *recordingProgress) CheckStopped(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopAfter > 0 && len(p.epochs) >= p.stopAfter {
		return core.ErrRunStopped
	}
	return nil
}
