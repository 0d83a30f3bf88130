// Package pg provides PostgreSQL connectivity helpers built on pgx/v5.
//
// It covers the lifecycle concerns every service in this repository shares:
// establishing a pgxpool with bounded retry, classifying common PostgreSQL
// errors, exposing a healthcheck closure for liveness endpoints, and applying
// goose migrations through the pgx stdlib bridge.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    log.Fatal(err)
//	}
//
// The retry policy doubles the delay between attempts, which keeps transient
// startup races (database container still booting, DNS not yet resolvable)
// from failing the whole process while bounding the total wait.
package pg
