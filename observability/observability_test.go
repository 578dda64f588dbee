package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/formfill/dbopen"
)

func setupRunLog(t *testing.T) *RunLog {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewRunLog(db)
}

func TestInit_CreatesTables(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	if err := Init(db); err != nil {
		t.Fatalf("second init: %v", err)
	}
	for _, table := range []string{"fill_runs", "fill_outcomes"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestRunLog_SaveAndGet(t *testing.T) {
	l := setupRunLog(t)
	ctx := context.Background()
	start := time.Now().Add(-2 * time.Second).Truncate(time.Millisecond)

	rec := &RunRecord{
		RunID:      "run_1",
		URL:        "https://boards.greenhouse.io/acme/jobs/1",
		Host:       "boards.greenhouse.io",
		Strategy:   "Greenhouse",
		Filled:     2,
		Total:      3,
		Status:     "Completed",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Outcomes:   []OutcomeRecord{
			{Label: "First Name", Kind: "firstName", Pass: "profile", Status: "high"},
			{Label: "Degree", Kind: "degree", Pass: "profile", Status: "failed", Error: "strategy: no matching option"},
			{Label: "Why us?", Pass: "generated", Status: "medium"},
		},
	}
	if err := l.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := l.Get(ctx, "run_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Filled != 2 || got.Total != 3 || got.Strategy != "Greenhouse" || got.Status != "Completed" {
		t.Fatalf("got %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Fatalf("started_at: got %v, want %v", got.StartedAt, start)
	}
	if got.Duration() != 1500*time.Millisecond {
		t.Fatalf("duration: got %v", got.Duration())
	}
	if len(got.Outcomes) != 3 || got.Outcomes[1].Error == "" || got.Outcomes[2].Label != "Why us?" {
		t.Fatalf("outcomes: %+v", got.Outcomes)
	}

	// Saving again replaces the outcomes.
	rec.Outcomes = rec.Outcomes[:1]
	rec.OracleUnavailable = true
	if err := l.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err = l.Get(ctx, "run_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Outcomes) != 1 || !got.OracleUnavailable {
		t.Fatalf("after replace: %+v", got)
	}
}

func TestRunLog_GetUnknown(t *testing.T) {
	l := setupRunLog(t)
	if _, err := l.Get(context.Background(), "run_missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err: got %v", err)
	}
}

func TestRunLog_RecordDefaults(t *testing.T) {
	l := NewRunLog(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)),
		WithRunIDGenerator(func() string { return "run_fixed" }))
	rec := &RunRecord{Host: "example.com", Strategy: "Generic", Status: "Stopped"}
	l.Record(context.Background(), rec)

	if rec.RunID != "run_fixed" {
		t.Fatalf("run id: got %q", rec.RunID)
	}
	got, err := l.Get(context.Background(), "run_fixed")
	if err != nil {
		t.Fatal(err)
	}
	if got.StartedAt.IsZero() || got.Duration() != 0 {
		t.Fatalf("timestamps: %+v", got)
	}
}

func TestRunLog_RecordSwallowsErrors(t *testing.T) {
	db := dbopen.OpenMemory(t) // no schema
	l := NewRunLog(db)
	l.Record(context.Background(), &RunRecord{RunID: "run_x", Strategy: "Generic", Status: "Completed"})
}

func TestRunLog_ListFilters(t *testing.T) {
	l := setupRunLog(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	hosts := []string{"a.example", "b.example", "a.example"}
	for i, h := range hosts {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := l.Save(ctx, &RunRecord{
			RunID: "run_" + string(rune('a'+i)), Host: h, Strategy: "Generic",
			Status: "Completed", StartedAt: at, FinishedAt: at,
		}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.List(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].RunID != "run_c" {
		t.Fatalf("all: %+v", all)
	}

	onA, err := l.List(ctx, RunFilter{Host: "a.example"})
	if err != nil {
		t.Fatal(err)
	}
	if len(onA) != 2 {
		t.Fatalf("host filter: got %d", len(onA))
	}

	recent, err := l.List(ctx, RunFilter{Since: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].RunID != "run_c" {
		t.Fatalf("since filter: %+v", recent)
	}

	limited, err := l.List(ctx, RunFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit: got %d", len(limited))
	}
}

func TestCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := NewRunLog(db)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40)
	if err := l.Save(ctx, &RunRecord{RunID: "run_old", Strategy: "Generic", Status: "Completed",
		StartedAt: old, FinishedAt: old,
		Outcomes: []OutcomeRecord{{Label: "Email", Status: "high"}}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Save(ctx, &RunRecord{RunID: "run_new", Strategy: "Generic", Status: "Completed"}); err != nil {
		t.Fatal(err)
	}

	n, err := Cleanup(ctx, db, RetentionConfig{})
	if err != nil || n != 0 {
		t.Fatalf("zero retention: n=%d err=%v", n, err)
	}

	n, err = Cleanup(ctx, db, RetentionConfig{RunsDays: 30})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted: got %d", n)
	}
	var outcomes int
	db.QueryRow("SELECT COUNT(*) FROM fill_outcomes").Scan(&outcomes)
	if outcomes != 0 {
		t.Fatalf("orphan outcomes: %d", outcomes)
	}
	if _, err := l.Get(ctx, "run_new"); err != nil {
		t.Fatalf("recent run removed: %v", err)
	}
}
