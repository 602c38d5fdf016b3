package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("-- sql\n"), 0o644))
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add cursor index", "add_cursor_index"},
		{"Add-Cursor-Index", "add_cursor_index"},
		{"ADD__CURSOR__INDEX", "add_cursor_index"},
		{"refund records 2", "refund_records_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading", "leading"},
		{"trailing_", "trailing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	t.Run("numbers after the highest version", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir,
			"000001_create_accounts.up.sql", "000001_create_accounts.down.sql",
			"000004_create_sync_state.up.sql", "000004_create_sync_state.down.sql",
		)

		mf, err := CreateMigration(dir, "add refund index", "Speeds up refund lookups")
		require.NoError(t, err)

		assert.Equal(t, uint(5), mf.Version)
		assert.Equal(t, "000005_add_refund_index", mf.FileName())
		assert.Equal(t, filepath.Join(dir, "000005_add_refund_index.up.sql"), mf.UpPath)
		assert.Equal(t, filepath.Join(dir, "000005_add_refund_index.down.sql"), mf.DownPath)

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "-- add_refund_index")
		assert.Contains(t, string(up), "-- Speeds up refund lookups")

		down, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "Rollback of add_refund_index")
	})

	t.Run("first migration in a new directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "migrations")

		mf, err := CreateMigration(dir, "create accounts", "")
		require.NoError(t, err)
		assert.Equal(t, uint(1), mf.Version)
		assert.FileExists(t, mf.UpPath)
		assert.FileExists(t, mf.DownPath)

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.NotContains(t, string(up), "-- \n")
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		require.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("ordered by version with down flags", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir,
			"000010_add_index.up.sql",
			"000002_create_listings.up.sql", "000002_create_listings.down.sql",
			"000001_create_accounts.up.sql", "000001_create_accounts.down.sql",
			"README.md", "notes.sql", "draft_create.up.sql",
		)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

		got, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []Migration{
			{Version: 1, Name: "create_accounts", HasDown: true},
			{Version: 2, Name: "create_listings", HasDown: true},
			{Version: 10, Name: "add_index", HasDown: false},
		}, got)
	})

	t.Run("empty directory", func(t *testing.T) {
		got, err := ListMigrations(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing directory", func(t *testing.T) {
		got, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestListMigrations_RepositoryMigrations(t *testing.T) {
	got, err := ListMigrations(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, got)

	for i, m := range got {
		assert.Equal(t, uint(i+1), m.Version, "versions are contiguous")
		assert.True(t, m.HasDown, "%s has a down file", m.FileName())
	}
}

func TestFindDir(t *testing.T) {
	explicit := t.TempDir()
	got, err := FindDir(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}
