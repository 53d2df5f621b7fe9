// Package storage provides the GORM-backed run store.
//
// This package includes:
//   - GormStorage: the core.Storage implementation for SQLite, PostgreSQL and MySQL
//   - Open: driver selection and connection pooling from configuration
//
// Claims use FOR UPDATE SKIP LOCKED where the database supports it and a
// version compare-and-set everywhere, so a run is executed by at most one
// worker. Writes made during execution are guarded on the run still being
// running and owned by the writing worker.
package storage
