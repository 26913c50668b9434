package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Cycle.PeriodSeconds != 10 {
		t.Errorf("Expected default period 10, got %d", cfg.Cycle.PeriodSeconds)
	}
	if cfg.Sense.TopK != 5 {
		t.Errorf("Expected default top_k 5, got %d", cfg.Sense.TopK)
	}
	if cfg.Express.Threshold != 0.6 {
		t.Errorf("Expected default express threshold 0.6, got %f", cfg.Express.Threshold)
	}
	if cfg.Salience.Weights["emotional"] != 0.30 {
		t.Errorf("Expected emotional weight 0.30, got %f", cfg.Salience.Weights["emotional"])
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Thought.S2MaxCallsPerTick != 2 {
		t.Errorf("Expected default s2 budget 2, got %d", cfg.Thought.S2MaxCallsPerTick)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.yaml")
	doc := []byte("cycle:\n  period_seconds: 30\nexpress:\n  threshold: 0.75\n")
	if err := os.WriteFile(path, doc, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cycle.PeriodSeconds != 30 {
		t.Errorf("Expected period 30, got %d", cfg.Cycle.PeriodSeconds)
	}
	if cfg.Express.Threshold != 0.75 {
		t.Errorf("Expected threshold 0.75, got %f", cfg.Express.Threshold)
	}
	// Untouched keys keep defaults
	if cfg.Express.QualityThreshold != 0.7 {
		t.Errorf("Expected quality threshold default 0.7, got %f", cfg.Express.QualityThreshold)
	}
}

func TestUnknownKeyFailsStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.yaml")
	doc := []byte("cycle:\n  period_seconds: 30\nmystery_knob: true\n")
	if err := os.WriteFile(path, doc, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected unknown key to fail load")
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"06:00": 360,
		"23:59": 1439,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseClock(%q) = %d, want %d", in, got, want)
		}
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Error("Expected 25:00 to fail")
	}
}

func TestCareFallbacks(t *testing.T) {
	cc := CareConfig{
		DailyLimits:     map[string]int{"default": 5, "reminder": 12},
		CooldownMinutes: map[string]int{"default": 30},
	}
	if got := cc.DailyLimit("reminder"); got != 12 {
		t.Errorf("Expected reminder limit 12, got %d", got)
	}
	if got := cc.DailyLimit("care_message"); got != 5 {
		t.Errorf("Expected fallback limit 5, got %d", got)
	}
	if got := cc.Cooldown("anything").Minutes(); got != 30 {
		t.Errorf("Expected fallback cooldown 30m, got %f", got)
	}
}
