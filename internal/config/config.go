package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	UpstreamURL string // adaptive assessment engine base URL
	RedisAddr   string
	MongoURI    string
	ResultsURL  string // results page base URL used for skip redirects

	// TTS side channel
	TTSProvider  string // "upstream" or "openai"
	OpenAIAPIKey string
	TTSModel     string
	TTSVoice     string

	CopyDeckPath string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:         getEnv("PORT", "8080"),
		UpstreamURL:  getEnv("UPSTREAM_URL", "http://localhost:9000"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		ResultsURL:   getEnv("RESULTS_URL", "/results"),
		TTSProvider:  getEnv("TTS_PROVIDER", "upstream"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		TTSModel:     getEnv("OPENAI_TTS_MODEL", "tts-1"),
		TTSVoice:     getEnv("OPENAI_TTS_VOICE", "alloy"),
		CopyDeckPath: getEnv("COPY_DECK_PATH", "configs/copy.yaml"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
