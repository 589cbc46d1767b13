package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/institutohope/platform/core"
	"github.com/institutohope/platform/core/student"
	testutil "github.com/institutohope/platform/tests"
)

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV { return &memKV{m: make(map[string]string)} }

func (kv *memKV) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok
}

func (kv *memKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}

func (kv *memKV) Remove(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, key)
	return nil
}

func (kv *memKV) Clear() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m = make(map[string]string)
	return nil
}

func setup(t *testing.T) (*commandLine, *memKV) {
	t.Helper()
	conf := &core.Config{AdminEmail: "admin@hope.com"}
	kv := newMemKV()

	var seq int
	ctrl := student.NewController(
		student.ModeLocal, kv, nil, nil, conf, testutil.NewLogger(t),
		func() string { seq++; return fmt.Sprintf("student-%d", seq) },
	)
	t.Cleanup(ctrl.Close)

	return &commandLine{conf: conf, ctrl: ctrl}, kv
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate without remote backend", args: []string{"migrate"}, wantErr: student.ErrNotConfigured},
		{name: "creatementor without email", args: []string{"creatementor"}, wantErr: errHelp},
		{name: "creatementor without password", args: []string{"creatementor", "-email", "admin@hope.com"}, wantErr: errHelp},
		{name: "creatementor wrong email", args: []string{"creatementor", "-email", "fake@hope.com"}, pwd: "secret1", wantErr: student.ErrRegistrationForbidden},
		{name: "creatementor", args: []string{"creatementor", "-email", "admin@hope.com"}, pwd: "secret1"},
		{name: "wipelocal", args: []string{"wipelocal"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}
}

func Test_commandLine_createMentor(t *testing.T) {
	cli, kv := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("secret1"), nil }
	if err := cli.run([]string{"admin", "creatementor", "-email", "ADMIN@hope.com"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	roster := cli.ctrl.Roster()
	if len(roster) != 1 {
		t.Fatalf("expected 1 roster entry, got %d", len(roster))
	}
	rec := roster[0]
	if rec.Role != student.RoleMentor || rec.Patent != student.PatentGeneral {
		t.Errorf("unexpected mentor record: role=%s patent=%s", rec.Role, rec.Patent)
	}
	if rec.Email != "admin@hope.com" {
		t.Errorf("email not normalized: %s", rec.Email)
	}
	// signed out after creation
	if _, ok := cli.ctrl.Session(); ok {
		t.Error("expected no active session")
	}
	if _, ok := kv.Get(student.KeyRoster); !ok {
		t.Error("roster not persisted")
	}
}

func Test_commandLine_wipeLocal(t *testing.T) {
	cli, kv := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("secret1"), nil }
	if err := cli.run([]string{"admin", "creatementor", "-email", "admin@hope.com"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	if err := cli.run([]string{"admin", "wipelocal"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if _, ok := kv.Get(student.KeyRoster); ok {
		t.Error("local store not cleared")
	}
	if len(cli.ctrl.Roster()) != 0 {
		t.Error("in-memory roster not cleared")
	}
}

func Test_commandLine_migrateMocked(t *testing.T) {
	cli, _ := setup(t)
	cli.pool = &pgxpool.Pool{}

	prev := migrateFunc
	t.Cleanup(func() { migrateFunc = prev })

	var called bool
	migrateFunc = func(ctx context.Context, pool *pgxpool.Pool) error {
		called = true
		return nil
	}

	if err := cli.run([]string{"admin", "migrate"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}
	if !called {
		t.Error("migrate was not invoked")
	}
}
