package config

import "testing"

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"LLMSIM_PORT", "LLMSIM_MAX_CONCURRENT_REQUESTS", "LLMSIM_LATENCY_MULTIPLIER",
		"LLMSIM_LATENCY_ENABLED", "LLMSIM_CHAOS_ENABLED", "LLMSIM_CHAOS_GLOBAL_PROBABILITY",
		"LLMSIM_SEED",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8787 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.Latency.Multiplier != 1.0 || !cfg.Latency.Enabled {
		t.Fatalf("unexpected default latency config: %+v", cfg.Latency)
	}
	if cfg.Chaos.Enabled {
		t.Fatalf("chaos should default to disabled")
	}
	if len(cfg.Latency.Profiles) == 0 {
		t.Fatalf("expected default latency profiles to be populated")
	}
	if len(cfg.Models) == 0 {
		t.Fatalf("expected default models to be populated")
	}
	if _, ok := cfg.Models["gpt-4"]; !ok {
		t.Fatalf("expected default models to include gpt-4")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLMSIM_PORT", "9999")
	t.Setenv("LLMSIM_LATENCY_MULTIPLIER", "2.5")
	t.Setenv("LLMSIM_CHAOS_ENABLED", "true")
	t.Setenv("LLMSIM_SEED", "42")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Fatalf("port override not applied: %d", cfg.Server.Port)
	}
	if cfg.Latency.Multiplier != 2.5 {
		t.Fatalf("multiplier override not applied: %v", cfg.Latency.Multiplier)
	}
	if !cfg.Chaos.Enabled {
		t.Fatalf("chaos enabled override not applied")
	}
	if cfg.Seed == nil || *cfg.Seed != 42 {
		t.Fatalf("seed override not applied: %+v", cfg.Seed)
	}
}

func TestValidateRejectsUndefinedLatencyProfile(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Port: 8787},
		Latency: LatencyConfig{Multiplier: 1.0, Profiles: DefaultLatencyProfiles()},
		Chaos:   ChaosConfig{GlobalProbability: 1.0},
		Models: map[string]ModelConfig{
			"bogus": {Family: "openai", LatencyProfileID: "does-not-exist"},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an undefined latency profile reference")
	}
}

func TestBuildWiresComponents(t *testing.T) {
	clearEnv(t)
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	comps, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if comps.Registry == nil || comps.Profiles == nil || comps.Chaos == nil {
		t.Fatalf("Build returned incomplete components: %+v", comps)
	}
	if _, ok := comps.Profiles.Resolve("gpt4"); !ok {
		t.Fatalf("expected gpt4 latency profile to resolve")
	}
}

func TestLatencyMultiplierDisabled(t *testing.T) {
	cfg := &Config{Latency: LatencyConfig{Enabled: false, Multiplier: 3.0}}
	if got := cfg.LatencyMultiplier(); got != 0 {
		t.Fatalf("expected 0 when latency disabled, got %v", got)
	}
}
