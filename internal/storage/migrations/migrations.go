// Package migrations applies the embedded PostgreSQL and ClickHouse schemas.
//
// Files are named NNN_name.sql and applied in version order. Each database
// records applied versions in a schema_migrations table, so a file runs once.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration is one versioned schema file split into statements.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// File returns the migration's file name.
func (m Migration) File() string {
	return fmt.Sprintf("%03d_%s.sql", m.Version, m.Name)
}

// Target is a database that tracks which migrations it has applied.
type Target interface {
	// Init creates the version table if needed.
	Init(ctx context.Context) error

	// Applied returns the recorded versions.
	Applied(ctx context.Context) (map[int]bool, error)

	// Apply runs m and records its version. It reports false when another
	// process recorded m first.
	Apply(ctx context.Context, m Migration) (bool, error)
}

var fileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.sql$`)

// Load reads every .sql file in dir, ordered by version.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		match := fileName.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration %s: name must match NNN_name.sql", entry.Name())
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", entry.Name(), version, prev)
		}
		seen[version] = entry.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		stmts, err := splitStatements(string(data))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
		if len(stmts) == 0 {
			return nil, fmt.Errorf("migration %s: no statements", entry.Name())
		}
		out = append(out, Migration{Version: version, Name: match[2], Statements: stmts})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Apply runs every migration the target has not recorded, in order, and
// returns the ones it applied. It stops at the first failure.
func Apply(ctx context.Context, t Target, ms []Migration) ([]Migration, error) {
	if err := t.Init(ctx); err != nil {
		return nil, fmt.Errorf("init schema_migrations: %w", err)
	}
	done, err := t.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	var applied []Migration
	for _, m := range ms {
		if done[m.Version] {
			continue
		}
		ok, err := t.Apply(ctx, m)
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.File(), err)
		}
		if ok {
			applied = append(applied, m)
		}
	}
	return applied, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings.
// Line comments are dropped. Block comments are not supported.
func splitStatements(sql string) ([]string, error) {
	var (
		stmts    []string
		cur      strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inString:
			cur.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
					continue
				}
				inString = false
			}
		case ch == '\'':
			inString = true
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			return nil, fmt.Errorf("block comments are not supported")
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return stmts, nil
}
