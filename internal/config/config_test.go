package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: test-app
  environment: development
  port: 8080
database:
  driver: sqlite
  filename: test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Name != "test-app" || cfg.App.Port != 8080 {
		t.Errorf("unexpected app config: %+v", cfg.App)
	}
	if cfg.Booking.LeadTimeMinutes != 10 {
		t.Errorf("expected default lead time 10, got %d", cfg.Booking.LeadTimeMinutes)
	}
	if cfg.Booking.PendingPaymentTTLMinutes != 30 {
		t.Errorf("expected default TTL 30, got %d", cfg.Booking.PendingPaymentTTLMinutes)
	}
	if cfg.Booking.ExpiryInterval != "*/5 * * * *" {
		t.Errorf("expected default expiry interval, got %q", cfg.Booking.ExpiryInterval)
	}
}

func TestLoad_ExplicitBookingValues(t *testing.T) {
	path := writeConfig(t, `
app:
  name: test-app
  port: 9090
database:
  driver: sqlite
  filename: test.db
booking:
  lead_time_minutes: 30
  pending_payment_ttl_minutes: 15
  expiry_interval: "*/1 * * * *"
features:
  enable_metrics: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Booking.LeadTimeMinutes != 30 || cfg.Booking.PendingPaymentTTLMinutes != 15 {
		t.Errorf("unexpected booking config: %+v", cfg.Booking)
	}
	if !cfg.Features.EnableMetrics {
		t.Error("expected metrics enabled")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing app name",
			yaml: `
app:
  port: 8080
database:
  driver: sqlite
  filename: test.db
`,
			wantErr: "app name is required",
		},
		{
			name: "missing port",
			yaml: `
app:
  name: test-app
database:
  driver: sqlite
  filename: test.db
`,
			wantErr: "app port is required",
		},
		{
			name: "unsupported driver",
			yaml: `
app:
  name: test-app
  port: 8080
database:
  driver: postgres
  filename: test.db
`,
			wantErr: "unsupported database driver",
		},
		{
			name: "sqlite without filename",
			yaml: `
app:
  name: test-app
  port: 8080
database:
  driver: sqlite
`,
			wantErr: "database filename is required",
		},
		{
			name: "negative lead time",
			yaml: `
app:
  name: test-app
  port: 8080
database:
  driver: sqlite
  filename: test.db
booking:
  lead_time_minutes: -5
`,
			wantErr: "lead time cannot be negative",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
