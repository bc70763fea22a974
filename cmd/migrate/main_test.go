package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir
}

func TestMigrationFiles_LexicalOrderSkipsDown(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"000002_content.up.sql":          "B",
		"000001_initial_schema.up.sql":   "A",
		"000001_initial_schema.down.sql": "DROP",
		"README.md":                      "not sql",
	})

	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles() error = %v", err)
	}
	want := []string{"000001_initial_schema.up.sql", "000002_content.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestApplyDir_StopsAtFirstFailure(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id int)",
		"002_b.sql": "CREATE TABLE b (id int)",
		"003_c.sql": "CREATE TABLE c (id int)",
	})
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer database.Close()

	boom := errors.New("syntax error")
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnError(boom)
	mock.ExpectRollback()

	applied, err := applyDir(context.Background(), database, dir)

	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("applyDir() error = %v, want *FileError", err)
	}
	if fe.File != "002_b.sql" {
		t.Errorf("failing file = %q, want 002_b.sql", fe.File)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error does not wrap the exec failure: %v", err)
	}
	if len(applied) != 1 || applied[0] != "001_a.sql" {
		t.Errorf("applied = %v, want [001_a.sql]", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClearDirty(t *testing.T) {
	tests := []struct {
		name   string
		dirty  bool
		update bool
	}{
		{"dirty state is cleared", true, true},
		{"clean state is left alone", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer database.Close()

			mock.ExpectQuery("SELECT version, dirty FROM schema_migrations").
				WillReturnRows(sqlmock.NewRows([]string{"version", "dirty"}).AddRow(3, tt.dirty))
			if tt.update {
				mock.ExpectExec("UPDATE schema_migrations SET dirty = false").WillReturnResult(sqlmock.NewResult(0, 1))
			}

			if err := clearDirty(context.Background(), database); err != nil {
				t.Fatalf("clearDirty() error = %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}
