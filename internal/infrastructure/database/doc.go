// Package database provides the SQLite connection used by the shadowsync
// journal.
//
// The connection runs in WAL mode with a busy timeout and a single open
// connection. Schema changes are plain SQL files applied by Migrate from any
// fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
package database
