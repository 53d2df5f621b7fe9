// Package core provides the fundamental types and interfaces for training runs.
//
// This package contains:
//   - Run, Dataset and Template data models with GORM annotations
//   - The run lifecycle state machine
//   - Storage interface defining the Run Store contract
//   - Hyperparameter merging and typed lookups
//   - Event and error types shared by the worker and the pipeline
//
// Most users should import the root package github.com/jdziat/durable-training
// instead of this package directly.
package core
