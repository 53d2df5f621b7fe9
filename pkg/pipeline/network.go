package pipeline

import (
	"math/rand/v2"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
)

// Network is a single-output regression model over one window.
type Network struct {
	Kind string
	body sequential
	ps   []*Param
}

func newNetwork(kind string, body sequential) *Network {
	return &Network{Kind: kind, body: body, ps: body.params()}
}

// Params returns the trainable parameters in a stable order.
func (n *Network) Params() []*Param {
	return n.ps
}

// Predict runs inference on one window.
func (n *Network) Predict(x [][]float64) float64 {
	return n.body.forward(x, false)[0][0]
}

// accumulate runs forward and backward on one sample, adding scale times
// the loss gradient into the parameter gradients. It returns the loss.
func (n *Network) accumulate(x [][]float64, target float64, loss Loss, scale float64) float64 {
	pred := n.body.forward(x, true)[0][0]
	n.body.backward(seq{{loss.Grad(pred, target) * scale}})
	return loss.Value(pred, target)
}

func (n *Network) zeroGrad() {
	for _, p := range n.ps {
		p.zeroGrad()
	}
}

// Snapshot copies the current parameter values keyed by name.
func (n *Network) Snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(n.ps))
	for _, p := range n.ps {
		out[p.Name] = append([]float64(nil), p.W...)
	}
	return out
}

// Restore loads parameter values produced by Snapshot.
func (n *Network) Restore(values map[string][]float64) error {
	for _, p := range n.ps {
		v, ok := values[p.Name]
		if !ok {
			return errors.Newf("checkpoint has no parameter %s", p.Name)
		}
		if len(v) != len(p.W) {
			return errors.Newf("checkpoint parameter %s has %d values, model needs %d", p.Name, len(v), len(p.W))
		}
		copy(p.W, v)
	}
	return nil
}

// ModelBuilder constructs a network for inputSize features per step and
// windows of seqLen steps.
type ModelBuilder func(hp *core.HyperparameterReader, inputSize, seqLen int, rng *rand.Rand) (*Network, error)

// BuildTCN builds a temporal convolutional network: levels of dilated
// causal residual blocks with 32*2^i channels (capped at 256), then a
// dense head on the last time step.
func BuildTCN(hp *core.HyperparameterReader, inputSize, _ int, rng *rand.Rand) (*Network, error) {
	levels := hp.Int("levels", 4)
	kernel := hp.Int("kernel_size", 3)
	p := hp.Float("dropout", 0.1)
	if err := hp.Err(); err != nil {
		return nil, err
	}
	if levels < 1 || levels > 8 {
		return nil, core.AsConfigError(errors.Newf("levels must be between 1 and 8, got %d", levels))
	}
	if kernel < 1 {
		return nil, core.AsConfigError(errors.Newf("kernel_size must be positive, got %d", kernel))
	}
	if err := checkDropout(p); err != nil {
		return nil, err
	}

	var body sequential
	in := inputSize
	for i := range levels {
		out := min(32<<i, 256)
		body = append(body, newTemporalBlock(levelName(i), in, out, kernel, 1<<i, p, rng))
		in = out
	}
	body = append(body, &lastStep{}, newDense("head", in, 1, rng))
	return newNetwork("TCN", body), nil
}

// BuildMLP builds a feed-forward network over the flattened window.
func BuildMLP(hp *core.HyperparameterReader, inputSize, seqLen int, rng *rand.Rand) (*Network, error) {
	hidden := hp.Int("hidden_size", 64)
	layers := hp.Int("num_layers", 2)
	p := hp.Float("dropout", 0.1)
	if err := hp.Err(); err != nil {
		return nil, err
	}
	if hidden < 1 || layers < 1 {
		return nil, core.AsConfigError(errors.Newf("hidden_size and num_layers must be positive, got %d and %d", hidden, layers))
	}
	if err := checkDropout(p); err != nil {
		return nil, err
	}

	body := sequential{&flatten{}}
	in := inputSize * seqLen
	for i := range layers {
		body = append(body,
			newDense(levelName(i), in, hidden, rng),
			&relu{},
			&dropout{p: p, rng: rng},
		)
		in = hidden
	}
	body = append(body, newDense("head", in, 1, rng))
	return newNetwork("MLP", body), nil
}

func checkDropout(p float64) error {
	if p < 0 || p >= 1 {
		return core.AsConfigError(errors.Newf("dropout must be in [0, 1), got %g", p))
	}
	return nil
}

func levelName(i int) string {
	return "layer" + strconv.Itoa(i)
}
