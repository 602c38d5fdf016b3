package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const upTemplate = `-- {{.Name}}
-- Created: {{.Created}}
{{- if .Description}}
-- {{.Description}}
{{- end}}

`

const downTemplate = `-- Rollback of {{.Name}}
-- Created: {{.Created}}

`

// versionWidth is the zero padding of sequential versions (000001_...)
const versionWidth = 6

// Migration is one up/down file pair in the migrations directory
type Migration struct {
	Version uint
	Name    string
	HasDown bool
}

// FileName returns the base name shared by the up and down files
func (m Migration) FileName() string {
	return fmt.Sprintf("%0*d_%s", versionWidth, m.Version, m.Name)
}

// MigrationFile describes a newly created file pair
type MigrationFile struct {
	Migration
	Description string
	Created     string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair numbered after the highest
// existing version.
func CreateMigration(dir, name, description string) (*MigrationFile, error) {
	clean := sanitizeName(name)
	if clean == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	existing, err := ListMigrations(dir)
	if err != nil {
		return nil, err
	}
	var next uint = 1
	if n := len(existing); n > 0 {
		next = existing[n-1].Version + 1
	}

	mf := &MigrationFile{
		Migration:   Migration{Version: next, Name: clean, HasDown: true},
		Description: description,
		Created:     time.Now().UTC().Format(time.RFC3339),
	}
	mf.UpPath = filepath.Join(dir, mf.FileName()+".up.sql")
	mf.DownPath = filepath.Join(dir, mf.FileName()+".down.sql")

	if err := writeTemplate(mf.UpPath, upTemplate, mf); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := writeTemplate(mf.DownPath, downTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}
	return mf, nil
}

func writeTemplate(path, text string, data *MigrationFile) error {
	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return err
	}
	// O_EXCL keeps an existing migration from being overwritten.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// sanitizeName lowercases name and joins its words with underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// ListMigrations returns the migrations of dir ordered by version. A missing
// directory has no migrations.
func ListMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[uint]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m, direction, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		cur, found := byVersion[m.Version]
		if !found {
			cur = &Migration{Version: m.Version, Name: m.Name}
			byVersion[m.Version] = cur
		}
		if direction == "down" {
			cur.HasDown = true
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseFileName splits "000004_create_sync_state.up.sql"
func parseFileName(file string) (Migration, string, bool) {
	var direction string
	switch {
	case strings.HasSuffix(file, ".up.sql"):
		direction = "up"
	case strings.HasSuffix(file, ".down.sql"):
		direction = "down"
	default:
		return Migration{}, "", false
	}
	base := strings.TrimSuffix(file, "."+direction+".sql")
	num, name, ok := strings.Cut(base, "_")
	if !ok {
		return Migration{}, "", false
	}
	v, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return Migration{}, "", false
	}
	return Migration{Version: uint(v), Name: name}, direction, true
}

// FindDir resolves the migrations directory: an explicit path wins, then
// ./migrations, then migrations two levels above the executable.
func FindDir(explicit string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	const def = "migrations"
	if _, err := os.Stat(def); err == nil {
		return filepath.Abs(def)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "..", "..", def)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}
	return filepath.Abs(def)
}
