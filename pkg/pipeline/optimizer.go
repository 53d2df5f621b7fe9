package pipeline

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	Step(params []*Param)
	LearningRate() float64
	State() OptimizerState
}

// OptimizerState is the serializable state of an optimizer.
type OptimizerState struct {
	Kind         string               `json:"kind"`
	LearningRate float64              `json:"learning_rate"`
	Steps        int                  `json:"steps"`
	Slots        map[string][]float64 `json:"slots,omitempty"`
}

// NewOptimizer returns the optimizer named by the "optimizer" hyperparameter.
func NewOptimizer(name string, lr, momentum float64) (Optimizer, error) {
	if lr <= 0 {
		return nil, core.AsConfigError(errors.Newf("learning_rate must be positive, got %g", lr))
	}
	switch name {
	case "", "adam":
		return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8, m: map[string][]float64{}, v: map[string][]float64{}}, nil
	case "sgd":
		return &sgd{lr: lr, momentum: momentum, vel: map[string][]float64{}}, nil
	}
	return nil, core.AsConfigError(errors.WithHint(
		errors.Newf("unsupported optimizer %q", name),
		"use adam or sgd"))
}

type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  map[string][]float64
}

func (a *adam) Step(params []*Param) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for _, p := range params {
		m, ok := a.m[p.Name]
		if !ok {
			m = make([]float64, len(p.W))
			a.m[p.Name] = m
			a.v[p.Name] = make([]float64, len(p.W))
		}
		v := a.v[p.Name]
		for i, g := range p.G {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			p.W[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
}

func (a *adam) LearningRate() float64 { return a.lr }

func (a *adam) State() OptimizerState {
	slots := make(map[string][]float64, 2*len(a.m))
	for name, m := range a.m {
		slots["m/"+name] = append([]float64(nil), m...)
		slots["v/"+name] = append([]float64(nil), a.v[name]...)
	}
	return OptimizerState{Kind: "adam", LearningRate: a.lr, Steps: a.t, Slots: slots}
}

type sgd struct {
	lr, momentum float64
	t            int
	vel          map[string][]float64
}

func (s *sgd) Step(params []*Param) {
	s.t++
	for _, p := range params {
		if s.momentum == 0 {
			for i, g := range p.G {
				p.W[i] -= s.lr * g
			}
			continue
		}
		v, ok := s.vel[p.Name]
		if !ok {
			v = make([]float64, len(p.W))
			s.vel[p.Name] = v
		}
		for i, g := range p.G {
			v[i] = s.momentum*v[i] + g
			p.W[i] -= s.lr * v[i]
		}
	}
}

func (s *sgd) LearningRate() float64 { return s.lr }

func (s *sgd) State() OptimizerState {
	slots := make(map[string][]float64, len(s.vel))
	for name, v := range s.vel {
		slots["velocity/"+name] = append([]float64(nil), v...)
	}
	return OptimizerState{Kind: "sgd", LearningRate: s.lr, Steps: s.t, Slots: slots}
}
