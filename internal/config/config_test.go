package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Org.Name == "" || cfg.Reports.OutputDir == "" {
		t.Fatalf("default config incomplete: %+v", cfg)
	}
}

func TestGenerateDefaultRoundTrip(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("generated template does not parse: %v", err)
	}
	if cfg.Inventory.DefaultReorderLevel != Default().Inventory.DefaultReorderLevel {
		t.Fatal("template and Default disagree")
	}
}

func TestLoadOptionalFallsBack(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Org.Name != Default().Org.Name {
		t.Fatal("expected built-in defaults for a missing file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := "org:\n  name: \"\"\nreports:\n  output_dir: out\n"
	if err := os.WriteFile(filepath.Join(dir, "drydock.yml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected validation error for empty org name")
	}
}

func TestWebhookValidation(t *testing.T) {
	yamlWithHook := `org:
  name: Yard
reports:
  output_dir: out
webhooks:
  - url: ""
`
	if _, err := FromYAML([]byte(yamlWithHook)); err == nil {
		t.Fatal("expected error for empty webhook url")
	}
}
