package providers

import (
	"os"
)

// TestConfig holds provider API keys for the live tests.
type TestConfig struct {
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
}

// LoadTestConfig reads whatever provider keys the environment has.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
	}
}

func (c TestConfig) HasOpenRouter() bool { return c.OpenRouterAPIKey != "" }

func (c TestConfig) HasOpenAI() bool { return c.OpenAIAPIKey != "" }

func (c TestConfig) HasAnthropic() bool { return c.AnthropicAPIKey != "" }
