// Package database provides SQLite database connectivity for the message log.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations applied at startup from embedded SQL files
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Message bodies are stored in plaintext; the database path should
//     live on an encrypted volume in production
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - Connection pooling reduces overhead
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Run migrations
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Each migration file has both .up.sql and .down.sql
package database
