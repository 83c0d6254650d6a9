// Package config loads the simulator's YAML configuration (server, latency,
// chaos, models, seed) through viper, layering environment variable
// overrides on top with the getEnvInt/getEnvFloat/getBool helper style, and
// builds the wired components (registry, latency profile table, chaos
// decider, root seed) every other package depends on.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/llmsim/simulator/internal/chaos"
	"github.com/llmsim/simulator/internal/engine"
	"github.com/llmsim/simulator/internal/latency"
	"github.com/llmsim/simulator/internal/logger"
	"github.com/llmsim/simulator/internal/registry"
	"github.com/llmsim/simulator/internal/rng"
)

// ServerConfig is the `server.{host, port, max_concurrent_requests,
// request_timeout}` YAML block.
type ServerConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	MaxConcurrentRequests int          `mapstructure:"max_concurrent_requests"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	ShutdownDrainTimeout time.Duration `mapstructure:"shutdown_drain_timeout"`
}

// DistributionConfig is the YAML shape of a DistributionSpec, tagged by
// `kind`.
type DistributionConfig struct {
	Kind     string  `mapstructure:"kind"`
	Ms       float64 `mapstructure:"ms"`
	MeanMs   float64 `mapstructure:"mean_ms"`
	StdDevMs float64 `mapstructure:"std_dev_ms"`
	ScaleMs  float64 `mapstructure:"scale_ms"`
	Shape    float64 `mapstructure:"shape"`
}

func (d DistributionConfig) toSpec() (latency.DistributionSpec, error) {
	switch strings.ToLower(d.Kind) {
	case "constant", "":
		return latency.DistributionSpec{Kind: latency.Constant, ConstantMs: d.Ms}, nil
	case "normal":
		return latency.DistributionSpec{Kind: latency.Normal, MeanMs: d.MeanMs, StdDevMs: d.StdDevMs}, nil
	case "lognormal", "log_normal":
		return latency.DistributionSpec{Kind: latency.LogNormal, MeanMs: d.MeanMs, StdDevMs: d.StdDevMs}, nil
	case "exponential":
		return latency.DistributionSpec{Kind: latency.Exponential, MeanMs: d.MeanMs}, nil
	case "pareto":
		return latency.DistributionSpec{Kind: latency.Pareto, ScaleMs: d.ScaleMs, Shape: d.Shape}, nil
	default:
		return latency.DistributionSpec{}, fmt.Errorf("unknown distribution kind %q", d.Kind)
	}
}

// LatencyProfileConfig is one named entry of the
// `latency.profiles: {id → LatencyProfile}` map.
type LatencyProfileConfig struct {
	TTFT DistributionConfig `mapstructure:"ttft"`
	ITL  DistributionConfig `mapstructure:"itl"`
}

// LatencyConfig is the `latency.{enabled, multiplier, profiles}` YAML block.
type LatencyConfig struct {
	Enabled    bool                            `mapstructure:"enabled"`
	Multiplier float64                         `mapstructure:"multiplier"`
	Profiles   map[string]LatencyProfileConfig `mapstructure:"profiles"`
}

// CircuitBreakerConfig is the
// `chaos.circuit_breaker.{failure_threshold, open_duration, half_open_probe_count}`
// YAML block.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	OpenDuration       time.Duration `mapstructure:"open_duration"`
	HalfOpenProbeCount int           `mapstructure:"half_open_probe_count"`
	PerModel           bool          `mapstructure:"per_model"`
}

// ChaosRuleConfig is one entry of the `chaos.rules: [ChaosRule]` list.
type ChaosRuleConfig struct {
	Name        string   `mapstructure:"name"`
	Models      []string `mapstructure:"models"`
	Operations  []string `mapstructure:"operations"`
	ErrorKind   string   `mapstructure:"error_kind"`
	Probability float64  `mapstructure:"probability"`
	Enabled     bool     `mapstructure:"enabled"`
}

// ChaosConfig is the
// `chaos.{enabled, global_probability, circuit_breaker, rules}` YAML block.
type ChaosConfig struct {
	Enabled           bool                 `mapstructure:"enabled"`
	GlobalProbability float64              `mapstructure:"global_probability"`
	CircuitBreaker    CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Rules             []ChaosRuleConfig    `mapstructure:"rules"`
}

// PricingConfig mirrors engine.Pricing's YAML shape.
type PricingConfig struct {
	PromptUSDPerMToken     float64 `mapstructure:"prompt_usd_per_mtoken"`
	CompletionUSDPerMToken float64 `mapstructure:"completion_usd_per_mtoken"`
}

// ModelConfig is one entry of the
// `models: {id → Capability & latency_profile_id}` map.
type ModelConfig struct {
	Family              string        `mapstructure:"family"`
	ContextWindowTokens uint32        `mapstructure:"context_window_tokens"`
	MaxOutputTokens     uint32        `mapstructure:"max_output_tokens"`
	EmbeddingDim        *uint32       `mapstructure:"embedding_dim"`
	Pricing             PricingConfig `mapstructure:"pricing"`
	LatencyProfileID    string        `mapstructure:"latency_profile_id"`
	Aliases             []string      `mapstructure:"aliases"`
}

// Config is the root of the YAML configuration tree.
type Config struct {
	Env     string                 `mapstructure:"env"`
	Server  ServerConfig           `mapstructure:"server"`
	Latency LatencyConfig          `mapstructure:"latency"`
	Chaos   ChaosConfig            `mapstructure:"chaos"`
	Models  map[string]ModelConfig `mapstructure:"models"`
	Seed    *int64                 `mapstructure:"seed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.max_concurrent_requests", 256)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_drain_timeout", "10s")

	v.SetDefault("latency.enabled", true)
	v.SetDefault("latency.multiplier", 1.0)

	v.SetDefault("chaos.enabled", false)
	v.SetDefault("chaos.global_probability", 1.0)
	v.SetDefault("chaos.circuit_breaker.failure_threshold", 5)
	v.SetDefault("chaos.circuit_breaker.open_duration", "30s")
	v.SetDefault("chaos.circuit_breaker.half_open_probe_count", 1)
}

// getEnvInt, getEnvFloat, getBool are small override helpers bolted on top
// of viper for container-friendly single-value overrides that don't warrant
// a full YAML rewrite.
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// applyEnvOverrides layers a small, explicit set of env vars on top of the
// YAML-loaded config — the container-deployment escape hatch for operators
// who don't want to mount a full config file.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnvInt("LLMSIM_PORT", cfg.Server.Port)
	cfg.Server.MaxConcurrentRequests = getEnvInt("LLMSIM_MAX_CONCURRENT_REQUESTS", cfg.Server.MaxConcurrentRequests)
	cfg.Latency.Multiplier = getEnvFloat("LLMSIM_LATENCY_MULTIPLIER", cfg.Latency.Multiplier)
	cfg.Latency.Enabled = getBool("LLMSIM_LATENCY_ENABLED", cfg.Latency.Enabled)
	cfg.Chaos.Enabled = getBool("LLMSIM_CHAOS_ENABLED", cfg.Chaos.Enabled)
	cfg.Chaos.GlobalProbability = getEnvFloat("LLMSIM_CHAOS_GLOBAL_PROBABILITY", cfg.Chaos.GlobalProbability)
	if s := os.Getenv("LLMSIM_SEED"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.Seed = &n
		}
	}
}

// Load reads the YAML config at path (falling back to built-in defaults
// merged with DefaultModels/DefaultLatencyProfiles when path is empty or
// missing), then layers environment overrides on top.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return nil, nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Latency.Profiles) == 0 {
		cfg.Latency.Profiles = DefaultLatencyProfiles()
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels()
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate rejects a model naming a default_latency_profile_id that isn't
// configured as a startup error, not a silently-ignored reference.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Latency.Multiplier < 0 {
		return fmt.Errorf("latency.multiplier cannot be negative")
	}
	if !(0 <= c.Chaos.GlobalProbability && c.Chaos.GlobalProbability <= 1) {
		return fmt.Errorf("chaos.global_probability must be in [0,1]")
	}
	for id, m := range c.Models {
		if m.LatencyProfileID == "" {
			return fmt.Errorf("model %q has no latency_profile_id", id)
		}
		if _, ok := c.Latency.Profiles[m.LatencyProfileID]; !ok {
			return fmt.Errorf("model %q names undefined latency profile %q", id, m.LatencyProfileID)
		}
	}
	return nil
}

// ProfileTable is the LatencyProfiles implementation internal/engine's
// Dispatcher depends on, built once from config and immutable thereafter.
type ProfileTable struct {
	profiles map[string]latency.LatencyProfile
}

func (t *ProfileTable) Resolve(id string) (latency.LatencyProfile, bool) {
	p, ok := t.profiles[id]
	return p, ok
}

func buildProfileTable(cfgProfiles map[string]LatencyProfileConfig) (*ProfileTable, error) {
	out := make(map[string]latency.LatencyProfile, len(cfgProfiles))
	for id, p := range cfgProfiles {
		ttft, err := p.TTFT.toSpec()
		if err != nil {
			return nil, fmt.Errorf("profile %q ttft: %w", id, err)
		}
		itl, err := p.ITL.toSpec()
		if err != nil {
			return nil, fmt.Errorf("profile %q itl: %w", id, err)
		}
		out[id] = latency.LatencyProfile{TTFT: ttft, ITL: itl}
	}
	return &ProfileTable{profiles: out}, nil
}

func parseFamily(s string) (engine.Family, error) {
	switch strings.ToLower(s) {
	case "openai":
		return engine.FamilyOpenAI, nil
	case "anthropic":
		return engine.FamilyAnthropic, nil
	case "google":
		return engine.FamilyGoogle, nil
	default:
		return "", fmt.Errorf("unknown model family %q", s)
	}
}

func parseErrorKind(s string) (engine.ErrorKind, error) {
	switch strings.ToLower(s) {
	case "invalidrequest", "invalid_request":
		return engine.ErrInvalidRequest, nil
	case "modelnotfound", "model_not_found":
		return engine.ErrModelNotFound, nil
	case "unauthorized":
		return engine.ErrUnauthorized, nil
	case "ratelimited", "rate_limited":
		return engine.ErrRateLimited, nil
	case "timeout":
		return engine.ErrTimeout, nil
	case "servererror", "server_error":
		return engine.ErrServerError, nil
	case "circuitopen", "circuit_open":
		return engine.ErrCircuitOpen, nil
	case "resourceexhausted", "resource_exhausted":
		return engine.ErrResourceExhausted, nil
	default:
		return engine.ErrNone, fmt.Errorf("unknown error_kind %q", s)
	}
}

func buildRegistry(cfgModels map[string]ModelConfig, profiles map[string]LatencyProfileConfig) (*registry.Registry, error) {
	valid := make(map[string]struct{}, len(profiles))
	for id := range profiles {
		valid[id] = struct{}{}
	}

	entries := make([]registry.ModelEntry, 0, len(cfgModels))
	for id, m := range cfgModels {
		family, err := parseFamily(m.Family)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", id, err)
		}
		entries = append(entries, registry.ModelEntry{
			Capability: engine.Capability{
				ID:                  id,
				Family:              family,
				ContextWindowTokens: m.ContextWindowTokens,
				MaxOutputTokens:     m.MaxOutputTokens,
				EmbeddingDim:        m.EmbeddingDim,
				Pricing: engine.Pricing{
					PromptUSDPerMToken:     m.Pricing.PromptUSDPerMToken,
					CompletionUSDPerMToken: m.Pricing.CompletionUSDPerMToken,
				},
			},
			LatencyProfileID: m.LatencyProfileID,
			Aliases:          m.Aliases,
		})
	}

	return registry.New(entries, valid)
}

func buildChaosRules(rules []ChaosRuleConfig) ([]chaos.Rule, error) {
	out := make([]chaos.Rule, 0, len(rules))
	for _, r := range rules {
		kind, err := parseErrorKind(r.ErrorKind)
		if err != nil {
			return nil, fmt.Errorf("chaos rule %q: %w", r.Name, err)
		}
		scope := chaos.Scope{}
		if len(r.Models) > 0 {
			scope.Models = make(map[string]struct{}, len(r.Models))
			for _, m := range r.Models {
				scope.Models[m] = struct{}{}
			}
		}
		if len(r.Operations) > 0 {
			scope.Operations = make(map[engine.Operation]struct{}, len(r.Operations))
			for _, op := range r.Operations {
				scope.Operations[engine.Operation(op)] = struct{}{}
			}
		}
		out = append(out, chaos.Rule{
			Name:        r.Name,
			Scope:       scope,
			ErrorKind:   kind,
			Probability: r.Probability,
			Enabled:     r.Enabled,
		})
	}
	return out, nil
}

// Components bundles every object Build constructs from the YAML tree.
type Components struct {
	Registry *registry.Registry
	Profiles *ProfileTable
	Chaos    *chaos.Decider
	RootSeed rng.RootSeed
}

// Build wires the registry, latency profile table, and chaos decider from
// the loaded config — the one place that translates YAML-shaped config
// structs into the engine's internal types.
func (c *Config) Build() (*Components, error) {
	profiles, err := buildProfileTable(c.Latency.Profiles)
	if err != nil {
		return nil, err
	}

	reg, err := buildRegistry(c.Models, c.Latency.Profiles)
	if err != nil {
		return nil, err
	}

	rules, err := buildChaosRules(c.Chaos.Rules)
	if err != nil {
		return nil, err
	}

	decider := chaos.New(
		c.Chaos.Enabled,
		rules,
		c.Chaos.GlobalProbability,
		chaos.CircuitBreakerConfig{
			FailureThreshold:   c.Chaos.CircuitBreaker.FailureThreshold,
			OpenDuration:       c.Chaos.CircuitBreaker.OpenDuration,
			HalfOpenProbeCount: c.Chaos.CircuitBreaker.HalfOpenProbeCount,
		},
		c.Chaos.CircuitBreaker.PerModel,
	)

	var root rng.RootSeed
	if c.Seed != nil {
		root = rng.FromInt64(*c.Seed)
	} else {
		root = rng.RandomRootSeed()
	}

	return &Components{Registry: reg, Profiles: profiles, Chaos: decider, RootSeed: root}, nil
}

// LatencyMultiplier resolves the effective multiplier to hand to
// latency.NewSampler: 0 when latency simulation is disabled, treating
// enabled=false as equivalent to multiplier=0.
func (c *Config) LatencyMultiplier() float64 {
	if !c.Latency.Enabled {
		return 0
	}
	return c.Latency.Multiplier
}

// WatchChaosRules wires fsnotify (through viper's own watcher) so edits to
// the config file hot-reload the chaos rule list without restarting the
// process. Circuit breaker state is untouched because SwapRules only
// replaces the rule pointer.
func WatchChaosRules(v *viper.Viper, path string, decider *chaos.Decider) {
	if path == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Log.Errorw("config hot-reload: unmarshal failed", "err", err)
			return
		}
		rules, err := buildChaosRules(cfg.Chaos.Rules)
		if err != nil {
			logger.Log.Errorw("config hot-reload: invalid chaos rules, keeping previous", "err", err)
			return
		}
		decider.SwapRules(rules)
		logger.Log.Infow("config hot-reload: chaos rules swapped", "count", len(rules))
	})
	v.WatchConfig()
}
