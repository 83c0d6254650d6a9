package config

// DefaultLatencyProfiles is the built-in profile set (fast/standard/slow
// plus per-vendor realistic profiles), used whenever no YAML
// `latency.profiles` map is configured.
func DefaultLatencyProfiles() map[string]LatencyProfileConfig {
	return map[string]LatencyProfileConfig{
		"fast": {
			TTFT: DistributionConfig{Kind: "normal", MeanMs: 50, StdDevMs: 10},
			ITL:  DistributionConfig{Kind: "normal", MeanMs: 15, StdDevMs: 3},
		},
		"standard": {
			TTFT: DistributionConfig{Kind: "normal", MeanMs: 200, StdDevMs: 50},
			ITL:  DistributionConfig{Kind: "normal", MeanMs: 30, StdDevMs: 8},
		},
		"slow": {
			TTFT: DistributionConfig{Kind: "normal", MeanMs: 500, StdDevMs: 100},
			ITL:  DistributionConfig{Kind: "normal", MeanMs: 60, StdDevMs: 15},
		},
		"gpt4": {
			TTFT: DistributionConfig{Kind: "lognormal", MeanMs: 200, StdDevMs: 50},
			ITL:  DistributionConfig{Kind: "exponential", MeanMs: 30},
		},
		"claude": {
			TTFT: DistributionConfig{Kind: "lognormal", MeanMs: 250, StdDevMs: 100},
			ITL:  DistributionConfig{Kind: "lognormal", MeanMs: 35, StdDevMs: 12},
		},
		"gemini": {
			TTFT: DistributionConfig{Kind: "lognormal", MeanMs: 200, StdDevMs: 80},
			ITL:  DistributionConfig{Kind: "lognormal", MeanMs: 25, StdDevMs: 10},
		},
		"instant": {
			TTFT: DistributionConfig{Kind: "constant", Ms: 0},
			ITL:  DistributionConfig{Kind: "constant", Ms: 0},
		},
	}
}

func dim(n uint32) *uint32 { return &n }

// DefaultModels is the built-in model catalog, used whenever no YAML
// `models` map is configured — it exercises all three vendor families plus
// the embedding path out of the box.
func DefaultModels() map[string]ModelConfig {
	return map[string]ModelConfig{
		"gpt-4": {
			Family: "openai", ContextWindowTokens: 8192, MaxOutputTokens: 4096,
			Pricing: PricingConfig{PromptUSDPerMToken: 30, CompletionUSDPerMToken: 60},
			LatencyProfileID: "gpt4",
		},
		"gpt-4-turbo": {
			Family: "openai", ContextWindowTokens: 128_000, MaxOutputTokens: 4096,
			Pricing:          PricingConfig{PromptUSDPerMToken: 10, CompletionUSDPerMToken: 30},
			LatencyProfileID: "gpt4",
			Aliases:          []string{"gpt-4-turbo-preview"},
		},
		"gpt-4o": {
			Family: "openai", ContextWindowTokens: 128_000, MaxOutputTokens: 4096,
			Pricing:          PricingConfig{PromptUSDPerMToken: 5, CompletionUSDPerMToken: 15},
			LatencyProfileID: "gpt4",
		},
		"gpt-4o-mini": {
			Family: "openai", ContextWindowTokens: 128_000, MaxOutputTokens: 16384,
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.15, CompletionUSDPerMToken: 0.6},
			LatencyProfileID: "fast",
		},
		"gpt-3.5-turbo": {
			Family: "openai", ContextWindowTokens: 16_385, MaxOutputTokens: 4096,
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.5, CompletionUSDPerMToken: 1.5},
			LatencyProfileID: "fast",
		},
		"claude-3-5-sonnet-20241022": {
			Family: "anthropic", ContextWindowTokens: 200_000, MaxOutputTokens: 8192,
			Pricing:          PricingConfig{PromptUSDPerMToken: 3, CompletionUSDPerMToken: 15},
			LatencyProfileID: "claude",
		},
		"claude-3-opus-20240229": {
			Family: "anthropic", ContextWindowTokens: 200_000, MaxOutputTokens: 4096,
			Pricing:          PricingConfig{PromptUSDPerMToken: 15, CompletionUSDPerMToken: 75},
			LatencyProfileID: "claude",
		},
		"claude-3-sonnet-20240229": {
			Family: "anthropic", ContextWindowTokens: 200_000, MaxOutputTokens: 4096,
			Pricing:          PricingConfig{PromptUSDPerMToken: 3, CompletionUSDPerMToken: 15},
			LatencyProfileID: "claude",
		},
		"claude-3-haiku-20240307": {
			Family: "anthropic", ContextWindowTokens: 200_000, MaxOutputTokens: 4096,
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.25, CompletionUSDPerMToken: 1.25},
			LatencyProfileID: "fast",
		},
		"gemini-1.5-pro": {
			Family: "google", ContextWindowTokens: 2_000_000, MaxOutputTokens: 8192,
			Pricing:          PricingConfig{PromptUSDPerMToken: 3.5, CompletionUSDPerMToken: 10.5},
			LatencyProfileID: "gemini",
		},
		"gemini-1.5-flash": {
			Family: "google", ContextWindowTokens: 1_000_000, MaxOutputTokens: 8192,
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.075, CompletionUSDPerMToken: 0.3},
			LatencyProfileID: "fast",
		},
		"text-embedding-ada-002": {
			Family: "openai", ContextWindowTokens: 8191, MaxOutputTokens: 0, EmbeddingDim: dim(1536),
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.1, CompletionUSDPerMToken: 0},
			LatencyProfileID: "fast",
		},
		"text-embedding-3-small": {
			Family: "openai", ContextWindowTokens: 8191, MaxOutputTokens: 0, EmbeddingDim: dim(1536),
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.02, CompletionUSDPerMToken: 0},
			LatencyProfileID: "fast",
		},
		"text-embedding-3-large": {
			Family: "openai", ContextWindowTokens: 8191, MaxOutputTokens: 0, EmbeddingDim: dim(3072),
			Pricing:          PricingConfig{PromptUSDPerMToken: 0.13, CompletionUSDPerMToken: 0},
			LatencyProfileID: "fast",
		},
	}
}
