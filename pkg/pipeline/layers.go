package pipeline

import (
	"math"
	"math/rand/v2"
)

// Param is one trainable tensor with its accumulated gradient.
type Param struct {
	Name string
	W    []float64
	G    []float64
}

func newParam(name string, n int) *Param {
	return &Param{Name: name, W: make([]float64, n), G: make([]float64, n)}
}

func (p *Param) zeroGrad() {
	clear(p.G)
}

// seq is a time-major activation: seq[t][c].
type seq = [][]float64

func zeros(t, c int) seq {
	out := make(seq, t)
	for i := range out {
		out[i] = make([]float64, c)
	}
	return out
}

// layer is one differentiable stage. backward must follow the forward
// call for the same sample; layers cache what they need in between.
type layer interface {
	forward(x seq, train bool) seq
	backward(dy seq) seq
	params() []*Param
}

// ──────────────────────────────────────────────────────────────────────────────
// Dense
// ──────────────────────────────────────────────────────────────────────────────

// dense applies the same affine map to every time step.
type dense struct {
	in, out int
	w, b    *Param // w is out x in, row-major
	x       seq
}

func newDense(name string, in, out int, rng *rand.Rand) *dense {
	d := &dense{in: in, out: out, w: newParam(name+".weight", in*out), b: newParam(name+".bias", out)}
	bound := 1 / math.Sqrt(float64(in))
	for i := range d.w.W {
		d.w.W[i] = (rng.Float64()*2 - 1) * bound
	}
	for i := range d.b.W {
		d.b.W[i] = (rng.Float64()*2 - 1) * bound
	}
	return d
}

func (d *dense) forward(x seq, _ bool) seq {
	d.x = x
	y := zeros(len(x), d.out)
	for t, xt := range x {
		for o := 0; o < d.out; o++ {
			row := d.w.W[o*d.in : (o+1)*d.in]
			s := d.b.W[o]
			for i, v := range xt {
				s += row[i] * v
			}
			y[t][o] = s
		}
	}
	return y
}

func (d *dense) backward(dy seq) seq {
	dx := zeros(len(dy), d.in)
	for t, g := range dy {
		xt := d.x[t]
		for o, gv := range g {
			if gv == 0 {
				continue
			}
			d.b.G[o] += gv
			row := d.w.W[o*d.in : (o+1)*d.in]
			grow := d.w.G[o*d.in : (o+1)*d.in]
			for i := range row {
				grow[i] += gv * xt[i]
				dx[t][i] += gv * row[i]
			}
		}
	}
	return dx
}

func (d *dense) params() []*Param { return []*Param{d.w, d.b} }

// ──────────────────────────────────────────────────────────────────────────────
// Causal dilated convolution
// ──────────────────────────────────────────────────────────────────────────────

// causalConv is a 1-D convolution over time that only looks backwards:
// y[t] = b + sum_j W[:, :, j] . x[t-(k-1-j)*dilation], zero before t=0.
type causalConv struct {
	inC, outC, k, dilation int
	w, b                   *Param // w is outC x inC x k
	x                      seq
}

func newCausalConv(name string, inC, outC, k, dilation int, rng *rand.Rand) *causalConv {
	c := &causalConv{
		inC: inC, outC: outC, k: k, dilation: dilation,
		w: newParam(name+".weight", outC*inC*k),
		b: newParam(name+".bias", outC),
	}
	for i := range c.w.W {
		c.w.W[i] = rng.NormFloat64() * 0.01
	}
	bound := 1 / math.Sqrt(float64(inC*k))
	for i := range c.b.W {
		c.b.W[i] = (rng.Float64()*2 - 1) * bound
	}
	return c
}

func (c *causalConv) forward(x seq, _ bool) seq {
	c.x = x
	y := zeros(len(x), c.outC)
	for t := range x {
		for o := 0; o < c.outC; o++ {
			s := c.b.W[o]
			for j := 0; j < c.k; j++ {
				src := t - (c.k-1-j)*c.dilation
				if src < 0 {
					continue
				}
				xs := x[src]
				for i := 0; i < c.inC; i++ {
					s += c.w.W[(o*c.inC+i)*c.k+j] * xs[i]
				}
			}
			y[t][o] = s
		}
	}
	return y
}

func (c *causalConv) backward(dy seq) seq {
	dx := zeros(len(dy), c.inC)
	for t, g := range dy {
		for o, gv := range g {
			if gv == 0 {
				continue
			}
			c.b.G[o] += gv
			for j := 0; j < c.k; j++ {
				src := t - (c.k-1-j)*c.dilation
				if src < 0 {
					continue
				}
				xs := c.x[src]
				for i := 0; i < c.inC; i++ {
					idx := (o*c.inC+i)*c.k + j
					c.w.G[idx] += gv * xs[i]
					dx[src][i] += gv * c.w.W[idx]
				}
			}
		}
	}
	return dx
}

func (c *causalConv) params() []*Param { return []*Param{c.w, c.b} }

// ──────────────────────────────────────────────────────────────────────────────
// Activations and regularization
// ──────────────────────────────────────────────────────────────────────────────

type relu struct {
	mask [][]bool
}

func (r *relu) forward(x seq, _ bool) seq {
	y := zeros(len(x), 0)
	r.mask = make([][]bool, len(x))
	for t, xt := range x {
		y[t] = make([]float64, len(xt))
		r.mask[t] = make([]bool, len(xt))
		for i, v := range xt {
			if v > 0 {
				y[t][i] = v
				r.mask[t][i] = true
			}
		}
	}
	return y
}

func (r *relu) backward(dy seq) seq {
	dx := zeros(len(dy), 0)
	for t, g := range dy {
		dx[t] = make([]float64, len(g))
		for i, v := range g {
			if r.mask[t][i] {
				dx[t][i] = v
			}
		}
	}
	return dx
}

func (r *relu) params() []*Param { return nil }

// dropout zeroes activations with probability p while training and
// rescales the survivors by 1/(1-p).
type dropout struct {
	p     float64
	rng   *rand.Rand
	scale [][]float64
}

func (d *dropout) forward(x seq, train bool) seq {
	if !train || d.p <= 0 {
		d.scale = nil
		return x
	}
	keep := 1 / (1 - d.p)
	y := zeros(len(x), 0)
	d.scale = make([][]float64, len(x))
	for t, xt := range x {
		y[t] = make([]float64, len(xt))
		d.scale[t] = make([]float64, len(xt))
		for i, v := range xt {
			if d.rng.Float64() >= d.p {
				d.scale[t][i] = keep
				y[t][i] = v * keep
			}
		}
	}
	return y
}

func (d *dropout) backward(dy seq) seq {
	if d.scale == nil {
		return dy
	}
	dx := zeros(len(dy), 0)
	for t, g := range dy {
		dx[t] = make([]float64, len(g))
		for i, v := range g {
			dx[t][i] = v * d.scale[t][i]
		}
	}
	return dx
}

func (d *dropout) params() []*Param { return nil }

// ──────────────────────────────────────────────────────────────────────────────
// Shape helpers
// ──────────────────────────────────────────────────────────────────────────────

// lastStep keeps only the final time step.
type lastStep struct {
	t, c int
}

func (l *lastStep) forward(x seq, _ bool) seq {
	l.t, l.c = len(x), len(x[len(x)-1])
	return seq{x[len(x)-1]}
}

func (l *lastStep) backward(dy seq) seq {
	dx := zeros(l.t, l.c)
	copy(dx[l.t-1], dy[0])
	return dx
}

func (l *lastStep) params() []*Param { return nil }

// flatten turns a window into a single step holding every value.
type flatten struct {
	t, c int
}

func (f *flatten) forward(x seq, _ bool) seq {
	f.t, f.c = len(x), len(x[0])
	out := make([]float64, 0, f.t*f.c)
	for _, xt := range x {
		out = append(out, xt...)
	}
	return seq{out}
}

func (f *flatten) backward(dy seq) seq {
	dx := make(seq, f.t)
	for t := range dx {
		dx[t] = append([]float64(nil), dy[0][t*f.c:(t+1)*f.c]...)
	}
	return dx
}

func (f *flatten) params() []*Param { return nil }

// sequential chains layers.
type sequential []layer

func (s sequential) forward(x seq, train bool) seq {
	for _, l := range s {
		x = l.forward(x, train)
	}
	return x
}

func (s sequential) backward(dy seq) seq {
	for i := len(s) - 1; i >= 0; i-- {
		dy = s[i].backward(dy)
	}
	return dy
}

func (s sequential) params() []*Param {
	var ps []*Param
	for _, l := range s {
		ps = append(ps, l.params()...)
	}
	return ps
}

// temporalBlock is two causal convolutions with a residual connection,
// projected by a 1x1 convolution when the channel count changes.
type temporalBlock struct {
	net  sequential
	down *causalConv
	out  relu
}

func newTemporalBlock(name string, inC, outC, k, dilation int, p float64, rng *rand.Rand) *temporalBlock {
	b := &temporalBlock{
		net: sequential{
			newCausalConv(name+".conv1", inC, outC, k, dilation, rng),
			&relu{},
			&dropout{p: p, rng: rng},
			newCausalConv(name+".conv2", outC, outC, k, dilation, rng),
			&relu{},
			&dropout{p: p, rng: rng},
		},
	}
	if inC != outC {
		b.down = newCausalConv(name+".downsample", inC, outC, 1, 1, rng)
	}
	return b
}

func (b *temporalBlock) forward(x seq, train bool) seq {
	out := b.net.forward(x, train)
	res := x
	if b.down != nil {
		res = b.down.forward(x, train)
	}
	sum := zeros(len(out), len(out[0]))
	for t := range out {
		for c := range out[t] {
			sum[t][c] = out[t][c] + res[t][c]
		}
	}
	return b.out.forward(sum, train)
}

func (b *temporalBlock) backward(dy seq) seq {
	ds := b.out.backward(dy)
	dx := b.net.backward(ds)
	dres := ds
	if b.down != nil {
		dres = b.down.backward(ds)
	}
	for t := range dx {
		for c := range dx[t] {
			dx[t][c] += dres[t][c]
		}
	}
	return dx
}

func (b *temporalBlock) params() []*Param {
	ps := b.net.params()
	if b.down != nil {
		ps = append(ps, b.down.params()...)
	}
	return ps
}
