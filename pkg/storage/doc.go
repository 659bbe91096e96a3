// Package storage wires the backing services warden runs on: PostgreSQL for
// the event log and read models, Redis for command deduplication and the view
// cache, and S3-compatible object storage for audit archives.
//
// # PostgreSQL
//
// ConnectionManager holds a primary connection for writes and optional read
// replicas that projection queries may use. The schema is versioned by
// RunMigrations, which applies pending entries from Migrations() inside a
// transaction each and records them in schema_migrations.
//
//	cm, err := storage.NewConnectionManager(storage.ConnectionConfig{
//	    PrimaryURL: cfg.PostgresURL,
//	    MaxConns:   cfg.PostgresMaxConns,
//	    Timeout:    cfg.PostgresTimeout,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := storage.RunMigrations(ctx, cm.Primary(), logger); err != nil {
//	    return err
//	}
//
// # Redis
//
// NewRedisClient parses a redis:// URL, applies pool settings and verifies
// connectivity before returning.
//
// # Object storage
//
// S3Client stores opaque objects under a bucket. The audit archiver writes
// NDJSON batches through it.
//
// # Testing
//
// Unit tests use go-sqlmock and miniredis. Tests tagged "integration" start
// a real PostgreSQL with testcontainers via SetupPostgresContainer.
package storage
