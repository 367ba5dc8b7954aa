package catalog

import (
	"testing"

	"github.com/datalayer/agent-host/internal/hosttypes"
)

func TestRegisterAndGet(t *testing.T) {
	c := New()
	c.Register(hosttypes.Provider{ID: "fs", Name: "Filesystem", Kind: hosttypes.TransportInProcess})

	p, ok := c.Get("fs")
	if !ok {
		t.Fatal("expected fs to be registered")
	}
	if p.Name != "Filesystem" {
		t.Errorf("Name = %q, want %q", p.Name, "Filesystem")
	}
	if p.IsConfig {
		t.Error("catalog entries must never carry IsConfig=true")
	}
}

func TestGet_UnknownReturnsFalse(t *testing.T) {
	c := New()
	if _, ok := c.Get("nope"); ok {
		t.Error("expected Get on an unregistered id to return false")
	}
}

func TestGet_ReturnsIndependentCopy(t *testing.T) {
	c := New()
	c.Register(hosttypes.Provider{ID: "fs", RequiredEnvVars: []string{"A"}})

	p, _ := c.Get("fs")
	p.RequiredEnvVars[0] = "MUTATED"

	again, _ := c.Get("fs")
	if again.RequiredEnvVars[0] != "A" {
		t.Error("mutating a Get result must not affect the catalog's stored entry")
	}
}

func TestList_SortedByID(t *testing.T) {
	c := New()
	c.Register(hosttypes.Provider{ID: "zeta"})
	c.Register(hosttypes.Provider{ID: "alpha"})
	c.Register(hosttypes.Provider{ID: "mid"})

	list := c.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(list))
	}
	if list[0].ID != "alpha" || list[1].ID != "mid" || list[2].ID != "zeta" {
		t.Errorf("List not sorted by id: %v", []string{list[0].ID, list[1].ID, list[2].ID})
	}
}

func TestAvailable_RequiresEnvVars(t *testing.T) {
	c := New()
	c.Register(hosttypes.Provider{ID: "github", RequiredEnvVars: []string{"DEFINITELY_UNSET_VAR_XYZ"}})

	if c.Available("github") {
		t.Error("expected Available to be false when a required env var is unset")
	}
}

func TestAvailable_NoRequiredVarsIsAvailable(t *testing.T) {
	c := New()
	c.Register(hosttypes.Provider{ID: "fs"})

	if !c.Available("fs") {
		t.Error("expected Available to be true for a provider with no required env vars")
	}
}

func TestAvailable_UnknownIDIsFalse(t *testing.T) {
	c := New()
	if c.Available("nope") {
		t.Error("expected Available to be false for an unregistered id")
	}
}

func TestRegisterDefaults_PopulatesBuiltins(t *testing.T) {
	c := New()
	RegisterDefaults(c)

	for _, id := range []string{"fs", "bash", "fetch", "github", "google-drive"} {
		if _, ok := c.Get(id); !ok {
			t.Errorf("expected RegisterDefaults to register %q", id)
		}
	}
}

func TestRegister_ReplacesExistingEntry(t *testing.T) {
	c := New()
	c.Register(hosttypes.Provider{ID: "fs", Name: "v1"})
	c.Register(hosttypes.Provider{ID: "fs", Name: "v2"})

	p, _ := c.Get("fs")
	if p.Name != "v2" {
		t.Errorf("Name = %q, want %q after re-registering the same id", p.Name, "v2")
	}
	if len(c.List()) != 1 {
		t.Errorf("expected exactly one entry for id %q, got %d", "fs", len(c.List()))
	}
}
