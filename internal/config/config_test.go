package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/studio")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STUDIO_TIMEZONE", "Europe/Madrid")
	t.Setenv("BOOKING_RATE_PER_MINUTE", "3")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/studio" {
		t.Errorf("database url %q", cfg.Database.URL)
	}
	if cfg.Booking.RatePerMinute != 3 {
		t.Errorf("rate %d", cfg.Booking.RatePerMinute)
	}
	if cfg.JWT.Expiration != time.Hour {
		t.Errorf("default expiration %v", cfg.JWT.Expiration)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("default address %q", cfg.Server.Address)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Madrid" {
		t.Errorf("location %v %v", loc, err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  url: postgres://file/studio
jwt:
  secret: from-file
  expiration: 30m
studio:
  name: Iron Studio
reminders:
  schedule: "*/10 * * * *"
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Studio.Name != "Iron Studio" || cfg.JWT.Expiration != 30*time.Minute {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Reminders.Schedule != "*/10 * * * *" {
		t.Errorf("schedule %q", cfg.Reminders.Schedule)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/studio")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/studio")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STUDIO_TIMEZONE", "Mars/Olympus")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected timezone error")
	}
}
