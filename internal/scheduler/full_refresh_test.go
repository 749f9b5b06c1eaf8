package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) FetchAll(context.Context) { f.calls++ }

type fakeCycles struct{ calls int }

func (f *fakeCycles) RunCycle(context.Context) { f.calls++ }

func TestFullRefresh_OncePerCityPerLocalDay(t *testing.T) {
	refresher := &fakeRefresher{}
	cycles := &fakeCycles{}
	job := NewFullRefreshJob(refresher, cycles, zerolog.Nop())

	now := time.Date(2026, 2, 18, 10, 30, 0, 0, time.UTC) // 05:30 ET, 04:30 CT
	job.now = func() time.Time { return now }

	// Before 06:00 everywhere: nothing runs.
	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if refresher.calls != 0 || cycles.calls != 0 {
		t.Fatalf("Refresh before 06:00 local: %d fetches, %d cycles", refresher.calls, cycles.calls)
	}

	// 06:30 ET: the Eastern cities are due.
	now = time.Date(2026, 2, 18, 11, 30, 0, 0, time.UTC)
	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if refresher.calls != 1 || cycles.calls != 1 {
		t.Fatalf("Expected 1 refresh at 06:30 ET, got %d fetches, %d cycles", refresher.calls, cycles.calls)
	}

	// 06:00 CT: the Central cities trigger their own refresh.
	now = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if refresher.calls != 2 {
		t.Fatalf("Expected a second refresh at 06:00 CT, got %d", refresher.calls)
	}

	// Later the same day: all cities are done.
	now = time.Date(2026, 2, 18, 20, 0, 0, 0, time.UTC)
	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if refresher.calls != 2 {
		t.Fatalf("Refresh ran twice in one local day: %d", refresher.calls)
	}

	// Next local day: due again.
	now = time.Date(2026, 2, 19, 11, 30, 0, 0, time.UTC)
	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if refresher.calls != 3 {
		t.Fatalf("Expected a refresh on the next day, got %d", refresher.calls)
	}
}

func TestFullRefresh_Registers(t *testing.T) {
	s := New(zerolog.Nop())
	job := NewFullRefreshJob(&fakeRefresher{}, &fakeCycles{}, zerolog.Nop())

	if job.Name() != "full_refresh" {
		t.Errorf("Unexpected job name %q", job.Name())
	}
	if err := s.AddJob("@every 30m", job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
}
