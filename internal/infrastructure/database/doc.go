// Package database provides SQLite storage for dpmcore.
//
// It holds the transition history and the DVFS step log. The schema is
// managed by versioned migrations embedded from the top-level migrations
// package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or have a default,
// and every .up.sql file has a matching .down.sql.
package database
