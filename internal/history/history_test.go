package history

import (
	"context"
	"testing"
	"time"

	"odin/internal/assist"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTest(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := context.Background()
	for _, label := range []string{"curb", "stairs", "person"} {
		if _, err := s.Add(ctx, assist.Obstacle{Label: label, Distance: 2, Direction: "12", Severity: assist.SeverityMedium}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Label != "person" || got[1].Label != "stairs" {
		t.Fatalf("Recent(2) = %+v", got)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("ids = %q, %q", got[0].ID, got[1].ID)
	}
	if !got[0].At.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("At = %v", got[0].At)
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[2].Label != "curb" {
		t.Fatalf("Recent(0) = %+v", all)
	}

	if _, err := s.AddFeedback(ctx, "great", 5); err != nil {
		t.Fatal(err)
	}
	if n, err := s.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3 obstacles", n, err)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}

func TestFeedbackIsKeptApart(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Add(ctx, assist.Obstacle{Label: "door", Distance: 1, Direction: "3", Severity: assist.SeverityLow}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddFeedback(ctx, "voice too fast", 4); err != nil {
		t.Fatal(err)
	}

	fb, err := s.RecentFeedback(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fb) != 1 || fb[0].Text != "voice too fast" || fb[0].Satisfaction != 4 {
		t.Fatalf("RecentFeedback = %+v", fb)
	}

	obs, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 || obs[0].Label != "door" {
		t.Fatalf("Recent = %+v", obs)
	}
}
