package pubsub

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "ev-prod"}

	if got := c.resource(kindTopic, "ev-booking-events"); got != "projects/ev-prod/topics/ev-booking-events" {
		t.Fatalf("unexpected topic name %q", got)
	}
	if got := c.resource(kindTopic, "projects/other/topics/x"); got != "projects/other/topics/x" {
		t.Fatalf("full topic name should pass through, got %q", got)
	}
	if got := c.resource(kindSubscription, "projects/other/topics/x"); got != "projects/ev-prod/subscriptions/projects/other/topics/x" {
		t.Fatalf("topic path is not a subscription path, got %q", got)
	}
	if got := c.resource(kindSubscription, " notify-sub "); got != "projects/ev-prod/subscriptions/notify-sub" {
		t.Fatalf("unexpected subscription name %q", got)
	}
	if got := c.resource(kindSubscription, ""); got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatal("expected nil publisher")
	}
	if c.Subscriber("x") != nil {
		t.Fatal("expected nil subscriber")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	if !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	if err := describe(kindTopic, "t", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	missing := describe(kindSubscription, "notify-sub", status.Error(codes.NotFound, "gone"))
	if missing == nil || missing.Error() != `subscription "notify-sub" does not exist` {
		t.Fatalf("unexpected not-found error %v", missing)
	}
	denied := status.Error(codes.PermissionDenied, "no")
	if err := describe(kindTopic, "t", denied); !errors.Is(err, denied) {
		t.Fatalf("expected wrapped grpc error, got %v", err)
	}
}

func TestNonEmpty(t *testing.T) {
	got := nonEmpty("", " a ", "b")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected %v", got)
	}
}

func TestClientOptionsPreferInlineCredentials(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("expected no options, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}); len(got) != 1 {
		t.Fatalf("expected one option, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}); len(got) != 1 {
		t.Fatalf("expected one option, got %d", len(got))
	}
}
