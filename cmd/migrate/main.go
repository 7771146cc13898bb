// migrate manages the schema from the embedded SQL files.
//
//	migrate                    apply everything pending
//	migrate -steps 1           apply one migration
//	migrate -down -steps 1     roll back one migration
//	migrate -version           print the applied version
//	migrate -force 3           mark version 3 clean after a failed migration was fixed by hand
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"onego-security/backend/internal/config"
	"onego-security/backend/internal/db/migrate"
	"onego-security/backend/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back instead of applying (requires -steps)")
	steps := flag.Int("steps", 0, "number of migrations to apply or roll back; 0 applies all")
	version := flag.Bool("version", false, "print the applied schema version and exit")
	force := flag.Int("force", -1, "set the schema version without running migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.WithComponent(logger.New(cfg.LogLevel, cfg.Env), "migrate")
	defer func() { _ = log.Sync() }()

	cmd := migrate.Command{Action: "up", Steps: *steps}
	switch {
	case *version:
		cmd = migrate.Command{Action: "version"}
	case *force >= 0:
		cmd = migrate.Command{Action: "force", Version: *force}
	case *down:
		cmd.Action = "down"
	}

	st, err := migrate.NewRunner(cfg.DatabaseURL, log).Exec(cmd)
	if err != nil {
		log.Fatal("migrate failed", zap.String("action", cmd.Action), zap.Error(err))
	}
	fmt.Printf("version=%d dirty=%v\n", st.Version, st.Dirty)
}
