package instance

import "testing"

func TestGetIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("EVCHARGE_INSTANCE_ID", "cron-2")
	t.Setenv("DYNO", "worker.1")
	if got := GetID(); got != "cron-2" {
		t.Fatalf("expected cron-2, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("EVCHARGE_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected web.1, got %q", got)
	}
	t.Setenv("DYNO", "")
	if got := GetID(); got != "local" {
		t.Fatalf("expected local, got %q", got)
	}
}
