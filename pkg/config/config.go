package config

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider       string
	AnthropicAPIKey   string
	AnthropicModel    string
	CompletionsAPIURL string
	CompletionsAPIKey string
	CompletionsModel  string
	DBPath            string
	ServerPort        string
	NatsURL           string
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		LLMProvider:       getEnv("LLM_PROVIDER", "claude", printEnv),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", "", printEnv),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514", printEnv),
		CompletionsAPIURL: getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey: getEnv("COMPLETIONS_API_KEY", "", printEnv),
		CompletionsModel:  getEnv("COMPLETIONS_MODEL", "gpt-4.1-mini", printEnv),
		DBPath:            getEnv("DB_PATH", "./output/sqlite/companion.db", printEnv),
		ServerPort:        getEnv("SERVER_PORT", "44777", printEnv),
		NatsURL:           getEnv("NATS_URL", "", printEnv),
	}

	return conf, nil
}
