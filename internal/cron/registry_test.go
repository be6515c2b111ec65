package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name  string
	every time.Duration
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

type cadencedJob struct {
	stubJob
}

func (c *cadencedJob) Every() time.Duration { return c.every }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	a, b := &stubJob{name: "a"}, &stubJob{name: "b"}
	registry := NewRegistry(a, nil, b)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != a || jobs[1] != b {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("Jobs leaked internal state")
	}
}

func TestRegistryDueHonoursCadence(t *testing.T) {
	sweep := &stubJob{name: "sweep"}
	daily := &cadencedJob{stubJob{name: "daily", every: 24 * time.Hour}}
	registry := NewRegistry(sweep, daily)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	if due := registry.Due(start); len(due) != 2 {
		t.Fatalf("expected both jobs due on first cycle, got %d", len(due))
	}
	registry.MarkRan(sweep, start)
	registry.MarkRan(daily, start)

	due := registry.Due(start.Add(time.Minute))
	if len(due) != 1 || due[0] != sweep {
		t.Fatalf("expected only sweep due after a minute, got %v", due)
	}
	if due := registry.Due(start.Add(24 * time.Hour)); len(due) != 2 {
		t.Fatalf("expected daily job due after a day, got %d jobs", len(due))
	}
}
