// Package security provides validation, sanitization, and limits for training runs.
//
// This package includes:
//   - Validation for template names and run identifiers used in file paths
//   - Error message sanitization before an error is stored on a run
//   - Clamping for worker concurrency
package security
