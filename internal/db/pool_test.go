package db

import "testing"

func TestPoolConfig_Bounds(t *testing.T) {
	cfg, err := poolConfig("postgres://user:pw@localhost:5432/peerstats", 8, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConns != 8 || cfg.MinConns != 1 {
		t.Errorf("expected bounds 8/1, got %d/%d", cfg.MaxConns, cfg.MinConns)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != applicationName {
		t.Errorf("expected application_name %q, got %q", applicationName, got)
	}
}

func TestPoolConfig_KeepsApplicationName(t *testing.T) {
	cfg, err := poolConfig("postgres://localhost/peerstats?application_name=indexer", 4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "indexer" {
		t.Errorf("expected application_name from DSN, got %q", got)
	}
}

func TestPoolConfig_BadDSN(t *testing.T) {
	if _, err := poolConfig("postgres://%zz", 4, 0); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
