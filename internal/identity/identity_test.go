package identity

import (
	"context"
	"testing"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

func TestToEnv_KnownProvider(t *testing.T) {
	identities := []hosttypes.Identity{{ProviderName: "github", AccessToken: "T"}}
	env := ToEnv(identities)
	if env["GITHUB_TOKEN"] != "T" {
		t.Errorf("GITHUB_TOKEN = %q, want %q", env["GITHUB_TOKEN"], "T")
	}
}

func TestToEnv_UnknownProviderFallback(t *testing.T) {
	identities := []hosttypes.Identity{{ProviderName: "widgetco", AccessToken: "T"}}
	env := ToEnv(identities)
	if env["WIDGETCO_TOKEN"] != "T" {
		t.Errorf("WIDGETCO_TOKEN = %q, want %q", env["WIDGETCO_TOKEN"], "T")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatal("expected no identities on bare context")
	}

	identities := []hosttypes.Identity{{ProviderName: "google", AccessToken: "g"}}
	ctx = WithIdentities(ctx, identities)

	got, ok := FromContext(ctx)
	if !ok || len(got) != 1 || got[0].AccessToken != "g" {
		t.Fatalf("FromContext = %v, %v", got, ok)
	}
}

func TestStore_SetGetClear(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("run-1"); ok {
		t.Fatal("expected miss before Set")
	}

	s.Set("run-1", []hosttypes.Identity{{ProviderName: "github", AccessToken: "T"}})
	env := s.ToEnv("run-1")
	if env["GITHUB_TOKEN"] != "T" {
		t.Errorf("ToEnv = %v", env)
	}

	s.Clear("run-1")
	if env := s.ToEnv("run-1"); len(env) != 0 {
		t.Errorf("expected empty env after Clear, got %v", env)
	}
}

func TestStore_UnrelatedRunsDoNotLeak(t *testing.T) {
	s := NewStore()
	s.Set("run-a", []hosttypes.Identity{{ProviderName: "github", AccessToken: "A"}})
	s.Clear("run-a")

	s.Set("run-b", []hosttypes.Identity{{ProviderName: "github", AccessToken: "B"}})
	env := s.ToEnv("run-b")
	if env["GITHUB_TOKEN"] != "B" {
		t.Errorf("run-b leaked stale state: %v", env)
	}
	if _, ok := s.Get("run-a"); ok {
		t.Errorf("expected run-a cleared")
	}
}
