package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// LoadSkill
// ---------------------------------------------------------------------------

func TestLoadSkill_WithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.md")
	content := `---
name: my-skill
description: A test skill
tags:
  - testing
  - example
when: always
---
# Hello

This is the body.`

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSkill(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "my-skill" {
		t.Errorf("Name = %q, want %q", s.Name, "my-skill")
	}
	if s.Description != "A test skill" {
		t.Errorf("Description = %q, want %q", s.Description, "A test skill")
	}
	if len(s.Tags) != 2 || s.Tags[0] != "testing" || s.Tags[1] != "example" {
		t.Errorf("Tags = %v, want [testing example]", s.Tags)
	}
	if s.When != "always" {
		t.Errorf("When = %q, want %q", s.When, "always")
	}
	if !strings.Contains(s.Content, "# Hello") {
		t.Errorf("Content should contain '# Hello', got %q", s.Content)
	}
	if !strings.Contains(s.Content, "This is the body.") {
		t.Errorf("Content should contain body text, got %q", s.Content)
	}
	if s.Path == "" {
		t.Error("Path should be set")
	}
}

func TestLoadSkill_WithScripts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weather.md")
	content := `---
name: weather
description: Look up current weather
scripts:
  - name: get_weather
    description: Fetches the current conditions for a city
    parameters:
      - name: city
        type: string
        description: City name
        required: true
    returns: JSON object with temperature_c and conditions
    env_vars:
      - WEATHER_API_KEY
    example: |
      skill__get_weather(city="Lisbon")
---
Body.`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSkill(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Scripts) != 1 {
		t.Fatalf("expected 1 script, got %d", len(s.Scripts))
	}
	script := s.Scripts[0]
	if script.Name != "get_weather" {
		t.Errorf("script.Name = %q, want %q", script.Name, "get_weather")
	}
	if len(script.Parameters) != 1 || script.Parameters[0].Name != "city" || !script.Parameters[0].Required {
		t.Errorf("unexpected parameters: %+v", script.Parameters)
	}
	if len(script.EnvVars) != 1 || script.EnvVars[0] != "WEATHER_API_KEY" {
		t.Errorf("unexpected env vars: %v", script.EnvVars)
	}
	if !strings.Contains(script.Example, "skill__get_weather") {
		t.Errorf("unexpected example: %q", script.Example)
	}
}

func TestLoadSkill_WithoutFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my-tool.md")
	content := "# My Tool\n\nSome instructions."

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSkill(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "my-tool" {
		t.Errorf("Name = %q, want %q (derived from filename)", s.Name, "my-tool")
	}
	if s.Content != "# My Tool\n\nSome instructions." {
		t.Errorf("Content = %q, unexpected", s.Content)
	}
}

func TestLoadSkill_SKILLmd_DerivesNameFromDir(t *testing.T) {
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "awesome-plugin")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(skillDir, "SKILL.md")
	if err := os.WriteFile(path, []byte("Plugin instructions."), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSkill(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "awesome-plugin" {
		t.Errorf("Name = %q, want %q (derived from parent dir)", s.Name, "awesome-plugin")
	}
}

func TestLoadSkill_FrontmatterNameOverridesFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "generic.md")
	content := "---\nname: specific-name\n---\nBody."
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSkill(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "specific-name" {
		t.Errorf("Name = %q, want %q", s.Name, "specific-name")
	}
}

func TestLoadSkill_InvalidFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.md")
	content := "---\n: invalid yaml {{{\n---\nBody."
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadSkill(path)
	if err == nil {
		t.Error("expected error for invalid frontmatter")
	}
}

func TestLoadSkill_OpeningSepNoClosing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.md")
	content := "---\nsome text without closing separator"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSkill(path)
	if err != nil {
		t.Fatal(err)
	}
	// Entire file becomes content.
	if !strings.Contains(s.Content, "some text") {
		t.Errorf("Content = %q, expected to contain the text", s.Content)
	}
}

func TestLoadSkill_NonexistentFile(t *testing.T) {
	_, err := LoadSkill("/nonexistent/path.md")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

// ---------------------------------------------------------------------------
// LoadSkillsFromDir
// ---------------------------------------------------------------------------

func TestLoadSkillsFromDir_Mixed(t *testing.T) {
	dir := t.TempDir()

	// Direct .md file.
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("Skill A"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Direct .txt file.
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("Skill B"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-skill file — should be ignored.
	if err := os.WriteFile(filepath.Join(dir, "c.go"), []byte("not a skill"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Subdirectory with SKILL.md.
	subDir := filepath.Join(dir, "sub-skill")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(subDir, "SKILL.md"), []byte("Skill Sub"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Subdirectory without SKILL.md — should be ignored.
	emptyDir := filepath.Join(dir, "empty-dir")
	if err := os.MkdirAll(emptyDir, 0o755); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSkillsFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 skills, got %d", len(loaded))
	}

	names := make(map[string]bool)
	for _, s := range loaded {
		names[s.Name] = true
	}
	for _, want := range []string{"a", "b", "sub-skill"} {
		if !names[want] {
			t.Errorf("missing skill %q", want)
		}
	}
}

func TestLoadSkillsFromDir_NonexistentDir(t *testing.T) {
	loaded, err := LoadSkillsFromDir("/nonexistent/dir")
	if err != nil {
		t.Fatal("should not error for missing directory")
	}
	if len(loaded) != 0 {
		t.Errorf("expected 0 skills, got %d", len(loaded))
	}
}

func TestLoadSkillsFromDir_CaseInsensitiveSKILLmd(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "my-skill")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Lowercase skill.md should also be found.
	if err := os.WriteFile(filepath.Join(subDir, "skill.md"), []byte("lowercase skill"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSkillsFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(loaded))
	}
	if loaded[0].Name != "my-skill" {
		t.Errorf("Name = %q, want %q", loaded[0].Name, "my-skill")
	}
}

// ---------------------------------------------------------------------------
// LoadSkills (auto-discovery)
// ---------------------------------------------------------------------------

func TestLoadSkills_ProjectLocal(t *testing.T) {
	dir := t.TempDir()
	skillsDir := filepath.Join(dir, ".datalayer", "skills")
	if err := os.MkdirAll(skillsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillsDir, "local.md"), []byte("Local skill"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSkills(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(loaded))
	}
	if loaded[0].Name != "local" {
		t.Errorf("Name = %q, want %q", loaded[0].Name, "local")
	}
}

func TestLoadSkills_AgentsDirAndDatalayerBothDiscovered(t *testing.T) {
	dir := t.TempDir()

	agentsDir := filepath.Join(dir, ".agents", "skills")
	datalayerDir := filepath.Join(dir, ".datalayer", "skills")
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(datalayerDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(agentsDir, "shared.md"), []byte("Agents version"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(datalayerDir, "shared.md"), []byte("Datalayer version"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSkills(dir)
	if err != nil {
		t.Fatal(err)
	}
	// Different absolute paths = both loaded.
	if len(loaded) != 2 {
		t.Fatalf("expected 2 skills (different paths), got %d", len(loaded))
	}
}

// ---------------------------------------------------------------------------
// Select / ID
// ---------------------------------------------------------------------------

func TestSelect_PreservesRequestedOrderAndDropsUnknown(t *testing.T) {
	all := []*Skill{
		{Name: "Alpha"},
		{Name: "Beta"},
		{Name: "Gamma"},
	}
	got := Select(all, []string{"gamma", "alpha", "not-a-skill"})
	if len(got) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(got))
	}
	if got[0].Name != "Gamma" || got[1].Name != "Alpha" {
		t.Errorf("unexpected order: %v, %v", got[0].Name, got[1].Name)
	}
}

func TestSkillID_NormalizesName(t *testing.T) {
	s := &Skill{Name: "My Cool Skill"}
	if s.ID() != "my_cool_skill" {
		t.Errorf("ID() = %q, want %q", s.ID(), "my_cool_skill")
	}
}

// ---------------------------------------------------------------------------
// FormatForPrompt
// ---------------------------------------------------------------------------

func TestFormatForPrompt_Empty(t *testing.T) {
	result := FormatForPrompt(nil)
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestFormatForPrompt_SingleSkill(t *testing.T) {
	loaded := []*Skill{
		{Name: "test-skill", Description: "A test", Content: "Do things.", Path: "/skills/test-skill.md"},
	}
	result := FormatForPrompt(loaded)
	if !strings.Contains(result, "<name>test-skill</name>") {
		t.Errorf("result should contain skill name element, got %q", result)
	}
	if !strings.Contains(result, "<description>A test</description>") {
		t.Errorf("result should contain description")
	}
	if !strings.Contains(result, "file:///skills/test-skill.md") {
		t.Errorf("result should contain file location")
	}
}

func TestFormatForPrompt_MultipleSkills(t *testing.T) {
	loaded := []*Skill{
		{Name: "skill-a", Content: "A content"},
		{Name: "skill-b", Description: "B desc", Content: "B content"},
	}
	result := FormatForPrompt(loaded)
	if !strings.Contains(result, "<name>skill-a</name>") {
		t.Error("missing skill-a entry")
	}
	if !strings.Contains(result, "<name>skill-b</name>") {
		t.Error("missing skill-b entry")
	}
	if !strings.Contains(result, "<available_skills>") {
		t.Error("missing top-level wrapper element")
	}
}

// ---------------------------------------------------------------------------
// BuildAugmentedPrompt
// ---------------------------------------------------------------------------

func TestBuildAugmentedPrompt_NoSkills_ReturnsBaseUnchanged(t *testing.T) {
	got := BuildAugmentedPrompt("You are a helpful agent.", nil)
	if got != "You are a helpful agent." {
		t.Errorf("got %q, want base prompt unchanged", got)
	}
}

func TestBuildAugmentedPrompt_DescribesScripts(t *testing.T) {
	loaded := []*Skill{
		{
			Name:        "weather",
			Description: "Look up current weather",
			Scripts: []Script{
				{
					Name:        "get_weather",
					Description: "Fetches current conditions",
					Parameters: []ScriptParameter{
						{Name: "city", Type: "string", Required: true, Description: "City name"},
					},
					Returns: "JSON with temperature_c",
					EnvVars: []string{"WEATHER_API_KEY"},
					Example: `skill__get_weather(city="Lisbon")`,
				},
			},
		},
	}
	got := BuildAugmentedPrompt("Base prompt.", loaded)
	if !strings.Contains(got, "Base prompt.") {
		t.Error("expected base prompt to be preserved")
	}
	if !strings.Contains(got, "<call_as>skill__weather__get_weather</call_as>") {
		t.Error("expected script call convention to be documented")
	}
	if !strings.Contains(got, `name="city"`) {
		t.Error("expected parameter name to be documented")
	}
	if !strings.Contains(got, "WEATHER_API_KEY") {
		t.Error("expected env var requirement to be documented")
	}
	if !strings.Contains(got, "Lisbon") {
		t.Error("expected the worked example to be included")
	}
}

func TestBuildAugmentedPrompt_ReferenceOnlySkill_NotesNoScripts(t *testing.T) {
	loaded := []*Skill{{Name: "reference-skill", Description: "Just background"}}
	got := BuildAugmentedPrompt("Base.", loaded)
	if !strings.Contains(got, "no callable scripts") {
		t.Error("expected a note that this skill has no callable scripts")
	}
}
