package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := Postgres()
	if err != nil {
		t.Fatalf("Postgres: %v", err)
	}
	if len(pg) < 2 || pg[0].File() != "001_tenants.sql" || pg[1].File() != "002_touchpoints.sql" {
		t.Errorf("unexpected postgres migrations: %+v", pg)
	}

	ch, err := Clickhouse()
	if err != nil {
		t.Fatalf("Clickhouse: %v", err)
	}
	if len(ch) != 1 || ch[0].Name != "attribution_rollups" || len(ch[0].Statements) != 1 {
		t.Errorf("unexpected clickhouse migrations: %+v", ch)
	}
	if strings.HasSuffix(ch[0].Statements[0], ";") {
		t.Error("statements must not keep the terminating semicolon")
	}
}

func TestLoad_OrdersByNumericVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/10_later.sql": {Data: []byte("CREATE TABLE b (x INT);")},
		"m/2_first.sql":  {Data: []byte("CREATE TABLE a (x INT);")},
		"m/README.md":    {Data: []byte("ignored")},
	}
	ms, err := Load(fsys, "m")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ms) != 2 || ms[0].Version != 2 || ms[1].Version != 10 {
		t.Fatalf("unexpected order: %+v", ms)
	}
	if ms[1].File() != "010_later.sql" {
		t.Errorf("File() = %q", ms[1].File())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"duplicate version", fstest.MapFS{
			"m/001_a.sql": {Data: []byte("SELECT 1;")},
			"m/1_b.sql":   {Data: []byte("SELECT 2;")},
		}},
		{"bad name", fstest.MapFS{"m/tenants.sql": {Data: []byte("SELECT 1;")}}},
		{"empty file", fstest.MapFS{"m/001_a.sql": {Data: []byte("-- nothing here\n")}}},
		{"unterminated string", fstest.MapFS{"m/001_a.sql": {Data: []byte("SELECT 'a;")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.fsys, "m"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	input := `-- header; with a semicolon
CREATE TABLE a (x String DEFAULT 'a;b');

-- second
INSERT INTO a VALUES ('it''s; fine'); SELECT 1
`
	stmts, err := splitStatements(input)
	if err != nil {
		t.Fatalf("splitStatements: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (x String DEFAULT 'a;b')" {
		t.Errorf("first statement: %q", stmts[0])
	}
	if stmts[1] != "INSERT INTO a VALUES ('it''s; fine')" {
		t.Errorf("second statement: %q", stmts[1])
	}
	if stmts[2] != "SELECT 1" {
		t.Errorf("third statement: %q", stmts[2])
	}

	if _, err := splitStatements("SELECT 1 /* a; b */"); err == nil {
		t.Error("block comments should be rejected")
	}
}

// fakeTarget records versions in memory.
type fakeTarget struct {
	done    map[int]bool
	ran     []string
	failOn  int
	raceOn  int
	initErr error
}

func (f *fakeTarget) Init(context.Context) error { return f.initErr }

func (f *fakeTarget) Applied(context.Context) (map[int]bool, error) {
	out := make(map[int]bool, len(f.done))
	for v := range f.done {
		out[v] = true
	}
	return out, nil
}

func (f *fakeTarget) Apply(_ context.Context, m Migration) (bool, error) {
	if m.Version == f.failOn {
		return false, errors.New("syntax error")
	}
	if m.Version == f.raceOn {
		f.done[m.Version] = true
		return false, nil
	}
	f.ran = append(f.ran, m.Statements...)
	f.done[m.Version] = true
	return true, nil
}

func testMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "tenants", Statements: []string{"CREATE TABLE tenants"}},
		{Version: 2, Name: "touchpoints", Statements: []string{"CREATE TABLE touchpoints", "CREATE INDEX tp_idx"}},
		{Version: 3, Name: "rollups", Statements: []string{"CREATE TABLE rollups"}},
	}
}

func TestApply_RunsPendingOnce(t *testing.T) {
	ctx := context.Background()
	target := &fakeTarget{done: map[int]bool{1: true}}

	applied, err := Apply(ctx, target, testMigrations())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(applied) != 2 || applied[0].Version != 2 || applied[1].Version != 3 {
		t.Errorf("applied = %+v, want versions 2 and 3", applied)
	}
	if len(target.ran) != 3 {
		t.Errorf("ran %d statements, want 3: %v", len(target.ran), target.ran)
	}

	again, err := Apply(ctx, target, testMigrations())
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run applied %+v, want none", again)
	}
	if len(target.ran) != 3 {
		t.Errorf("second run executed statements: %v", target.ran)
	}
}

func TestApply_StopsAtFailure(t *testing.T) {
	target := &fakeTarget{done: map[int]bool{}, failOn: 2}

	applied, err := Apply(context.Background(), target, testMigrations())
	if err == nil || !strings.Contains(err.Error(), "002_touchpoints.sql") {
		t.Fatalf("err = %v, want failure naming 002_touchpoints.sql", err)
	}
	if len(applied) != 1 || applied[0].Version != 1 {
		t.Errorf("applied = %+v, want only version 1", applied)
	}
	if target.done[3] {
		t.Error("version 3 must not run after a failure")
	}
}

func TestApply_SkipsVersionRecordedConcurrently(t *testing.T) {
	target := &fakeTarget{done: map[int]bool{}, raceOn: 2}

	applied, err := Apply(context.Background(), target, testMigrations())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(applied) != 2 || applied[0].Version != 1 || applied[1].Version != 3 {
		t.Errorf("applied = %+v, want versions 1 and 3", applied)
	}
}

func TestApply_InitError(t *testing.T) {
	target := &fakeTarget{done: map[int]bool{}, initErr: errors.New("permission denied")}
	if _, err := Apply(context.Background(), target, testMigrations()); err == nil {
		t.Error("expected init error")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/analytics")
	if err != nil {
		t.Fatalf("databaseFromDSN: %v", err)
	}
	if db != "analytics" {
		t.Errorf("db = %q, want analytics", db)
	}
	for _, dsn := range []string{"clickhouse://localhost:9000", "clickhouse://localhost:9000/a%60b"} {
		if _, err := databaseFromDSN(dsn); err == nil {
			t.Errorf("expected error for %s", dsn)
		}
	}
}
