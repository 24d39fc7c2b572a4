package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRequiresRouterID(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing router_id")
	}
}

func TestValidateRejectsUndeclaredArea(t *testing.T) {
	cfg := Default()
	cfg.RouterID = "1.1.1.1"
	cfg.Interfaces = []InterfaceConfig{{Name: "eth0", AreaID: "0.0.0.0"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for interface referencing undeclared area")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Default()
	cfg.RouterID = "1.1.1.1"
	cfg.Areas = []AreaConfig{{ID: "0.0.0.0"}}
	cfg.Interfaces = []InterfaceConfig{{Name: "eth0", AreaID: "0.0.0.0", Priority: 1}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ID() != ([4]byte{1, 1, 1, 1}) {
		t.Fatalf("ID() = %v, want 1.1.1.1", cfg.ID())
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ospfd.yaml")
	contents := "router_id: 2.2.2.2\nareas:\n  - id: 0.0.0.0\ninterfaces:\n  - name: eth0\n    area_id: 0.0.0.0\n    priority: 1\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.RouterID != "2.2.2.2" {
		t.Fatalf("RouterID = %q, want 2.2.2.2", cfg.RouterID)
	}
	if len(cfg.Interfaces) != 1 || cfg.Interfaces[0].Name != "eth0" {
		t.Fatalf("unexpected interfaces: %+v", cfg.Interfaces)
	}
}
