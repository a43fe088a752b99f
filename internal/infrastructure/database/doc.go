// Package database provides the SQLite connection used for device state
// history.
//
// It manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations (see the migrations package)
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry a default, and
// every .up.sql has a matching .down.sql.
package database
