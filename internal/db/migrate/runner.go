// Package migrate applies the embedded SQL migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"onego-security/backend/internal/db"
)

var (
	ErrNoDSN          = errors.New("DATABASE_URL is not set; set DATABASE_URL or add it to .env")
	ErrInvalidCommand = errors.New("invalid migrate command")
	ErrDirtyDatabase  = errors.New("database is dirty; fix the schema and run force")
)

// Command is what Runner.Exec does.
type Command struct {
	// Action is one of "up", "down", "version" or "force".
	Action string
	// Steps limits up/down to that many migrations; 0 means all the way. Required to be > 0 for down.
	Steps int
	// Version is the target of "force".
	Version int
}

// Status is the schema state after a command.
type Status struct {
	Version uint
	Dirty   bool
}

// Runner executes commands against one database.
type Runner struct {
	dsn string
	log *zap.Logger
}

func NewRunner(dsn string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{dsn: strings.TrimSpace(dsn), log: log}
}

// Validate checks c without touching the database.
func (c Command) Validate() error {
	switch c.Action {
	case "up", "version":
	case "down":
		if c.Steps <= 0 {
			return fmt.Errorf("%w: down needs a positive step count", ErrInvalidCommand)
		}
	case "force":
		if c.Version < 0 {
			return fmt.Errorf("%w: force needs a version >= 0", ErrInvalidCommand)
		}
	default:
		return fmt.Errorf("%w: %q (want up, down, version or force)", ErrInvalidCommand, c.Action)
	}
	if c.Steps < 0 {
		return fmt.Errorf("%w: negative step count", ErrInvalidCommand)
	}
	return nil
}

// Exec runs c and reports the resulting schema version. Nothing to apply is not an error.
// up and down refuse to run on a dirty database.
func (r *Runner) Exec(c Command) (Status, error) {
	if err := c.Validate(); err != nil {
		return Status{}, err
	}
	if r.dsn == "" {
		return Status{}, ErrNoDSN
	}
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return Status{}, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, r.dsn)
	if err != nil {
		return Status{}, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	m.Log = zapLogger{r.log}

	before, err := status(m)
	if err != nil {
		return Status{}, err
	}
	switch c.Action {
	case "version":
		return before, nil
	case "force":
		if err := m.Force(c.Version); err != nil {
			return before, err
		}
		r.log.Warn("schema version forced", zap.Uint("from", before.Version), zap.Int("to", c.Version))
		return status(m)
	}
	if before.Dirty {
		return before, fmt.Errorf("%w (version %d)", ErrDirtyDatabase, before.Version)
	}
	switch {
	case c.Action == "up" && c.Steps == 0:
		err = m.Up()
	case c.Action == "up":
		err = m.Steps(c.Steps)
	default:
		err = m.Steps(-c.Steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, err
	}
	after, err := status(m)
	if err != nil {
		return before, err
	}
	r.log.Info("migrations applied", zap.String("action", c.Action),
		zap.Uint("from", before.Version), zap.Uint("to", after.Version))
	return after, nil
}

func status(m *migrate.Migrate) (Status, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Version: v, Dirty: dirty}, nil
}

// zapLogger routes golang-migrate's progress lines to zap at debug level.
type zapLogger struct{ log *zap.Logger }

func (l zapLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l zapLogger) Verbose() bool { return l.log.Core().Enabled(zap.DebugLevel) }
