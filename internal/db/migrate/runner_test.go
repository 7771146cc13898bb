package migrate

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"onego-security/backend/internal/db"
)

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"up all", Command{Action: "up"}, true},
		{"up steps", Command{Action: "up", Steps: 2}, true},
		{"down one", Command{Action: "down", Steps: 1}, true},
		{"down all refused", Command{Action: "down"}, false},
		{"version", Command{Action: "version"}, true},
		{"force zero", Command{Action: "force", Version: 0}, true},
		{"force negative", Command{Action: "force", Version: -1}, false},
		{"negative steps", Command{Action: "up", Steps: -1}, false},
		{"unknown", Command{Action: "sideways"}, false},
		{"case sensitive", Command{Action: "UP"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Validate = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestExec_NoDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if _, err := NewRunner(dsn, nil).Exec(Command{Action: "up"}); !errors.Is(err, ErrNoDSN) {
			t.Errorf("Exec with dsn %q = %v, want ErrNoDSN", dsn, err)
		}
	}
}

func TestExec_InvalidCommandBeforeDSN(t *testing.T) {
	if _, err := NewRunner("", nil).Exec(Command{Action: "down"}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Exec = %v, want ErrInvalidCommand", err)
	}
}

func TestExec_MalformedDSN(t *testing.T) {
	if _, err := NewRunner("postgres://localhost with spaces/test", nil).Exec(Command{Action: "version"}); err == nil {
		t.Error("want error for malformed DSN")
	}
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := zapLogger{zap.New(core)}
	if !l.Verbose() {
		t.Error("Verbose should follow the debug level")
	}
	l.Printf("Start buffering %d/u %s\n", 1, "users")
	if logs.Len() != 1 || logs.All()[0].Message != "Start buffering 1/u users" {
		t.Errorf("logged %+v", logs.All())
	}
	if (zapLogger{zap.NewNop()}).Verbose() {
		t.Error("nop logger should not be verbose")
	}
}

func TestMigrationFS_PairedFiles(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
}

// Needs a disposable database in DATABASE_URL.
func TestExec_UpThenStepDown(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	r := NewRunner(dsn, nil)
	st, err := r.Exec(Command{Action: "up"})
	if err != nil || st.Dirty || st.Version == 0 {
		t.Fatalf("up = %+v, %v", st, err)
	}
	if again, err := r.Exec(Command{Action: "up"}); err != nil || again != st {
		t.Errorf("second up = %+v, %v; want no-op", again, err)
	}
	down, err := r.Exec(Command{Action: "down", Steps: 1})
	if err != nil || down.Version != st.Version-1 {
		t.Errorf("down 1 = %+v, %v", down, err)
	}
	if _, err := r.Exec(Command{Action: "up"}); err != nil {
		t.Errorf("restore: %v", err)
	}
}
