package hostconfig

import (
	"testing"

	"github.com/datalayer/agent-host/internal/hostlog"
)

func TestExpand_SubstitutesKnownVariable(t *testing.T) {
	env := map[string]string{"GH": "xyz"}
	got := Expand("token-${GH}", env, hostlog.Disabled())
	if got != "token-xyz" {
		t.Errorf("Expand = %q, want %q", got, "token-xyz")
	}
}

func TestExpand_MissingVariableExpandsToEmpty(t *testing.T) {
	got := Expand("${MISSING}", nil, hostlog.Disabled())
	if got != "" {
		t.Errorf("Expand on a missing variable = %q, want empty string", got)
	}
}

func TestExpand_NoPlaceholdersReturnsUnchanged(t *testing.T) {
	got := Expand("plain-value", nil, hostlog.Disabled())
	if got != "plain-value" {
		t.Errorf("Expand = %q, want unchanged input", got)
	}
}

func TestHasPlaceholders(t *testing.T) {
	if !HasPlaceholders("${FOO}") {
		t.Error("expected HasPlaceholders to detect a ${NAME} token")
	}
	if HasPlaceholders("plain") {
		t.Error("expected HasPlaceholders to be false for a token-free string")
	}
}

// TestComposeEnv_ExtraEnvVisibleToConfigEnv exercises §8 property 5: for
// config {"env": {"X": "${A}"}} with extra_env {"A": "1"}, the composed
// environment sees X=1 — extra_env must be visible when expanding config.env.
func TestComposeEnv_ExtraEnvVisibleToConfigEnv(t *testing.T) {
	processEnv := map[string]string{}
	extraEnv := map[string]string{"A": "1", "B": "2"}
	configEnv := map[string]string{"X": "${A}"}

	composed := ComposeEnv(processEnv, extraEnv, configEnv, hostlog.Disabled())

	if composed["X"] != "1" {
		t.Errorf("composed[X] = %q, want %q", composed["X"], "1")
	}
	if composed["A"] != "1" || composed["B"] != "2" {
		t.Errorf("extra_env entries not carried through: %#v", composed)
	}
}

func TestComposeEnv_ConfigOverlaysExtraAndProcess(t *testing.T) {
	processEnv := map[string]string{"SHARED": "process"}
	extraEnv := map[string]string{"SHARED": "extra"}
	configEnv := map[string]string{"SHARED": "config"}

	composed := ComposeEnv(processEnv, extraEnv, configEnv, hostlog.Disabled())

	if composed["SHARED"] != "config" {
		t.Errorf("composed[SHARED] = %q, want the config.env value to win", composed["SHARED"])
	}
}

func TestExpandSlice_ExpandsEachArg(t *testing.T) {
	env := map[string]string{"B": "2"}
	args := ExpandSlice([]string{"--k", "${B}"}, env, hostlog.Disabled())
	want := []string{"--k", "2"}
	if len(args) != len(want) || args[0] != want[0] || args[1] != want[1] {
		t.Errorf("ExpandSlice = %v, want %v", args, want)
	}
}

func TestEnvToSlice_FormatsKeyValue(t *testing.T) {
	out := EnvToSlice(map[string]string{"A": "1"})
	if len(out) != 1 || out[0] != "A=1" {
		t.Errorf("EnvToSlice = %v, want [A=1]", out)
	}
}
