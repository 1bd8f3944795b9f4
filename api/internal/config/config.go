package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8000"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// 0: без дедлайна; клиент может задать свой через X-Request-Timeout / ?timeoutSec=
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"0s"`
	MaxImagePixels int           `envconfig:"MAX_IMAGE_PIXELS" default:"18000000"`
	StrictParse    bool          `envconfig:"STRICT_PARSE" default:"false"`
	PromptDir      string        `envconfig:"PROMPT_DIR"`
	CORSOrigins    []string      `envconfig:"CORS_ORIGINS" default:"*"`

	// canvas / bot side
	BackendURL   string        `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	DisplayDelay time.Duration `envconfig:"DISPLAY_DELAY" default:"1s"`

	SessionStore string        `envconfig:"SESSION_STORE" default:"memory"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	RedisURL     string        `envconfig:"REDIS_URL"`
	DatabaseURL  string        `envconfig:"DATABASE_URL"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	WebhookURL       string `envconfig:"WEBHOOK_URL"`
}

// Load читает .env (если есть) и переменные окружения.
// Уже выставленные переменные окружения имеют приоритет над .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	return &c, nil
}

// Require проверяет обязательные переменные для конкретного бинарника.
func Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(os.Getenv(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env %s", strings.Join(missing, ", "))
	}
	return nil
}
