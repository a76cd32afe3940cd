package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config centralizes runtime settings for the API and the analysis jobs.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:"output"`
	DevMode   bool   `env:"DEV_MODE" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`
	LogFile  string `env:"LOG_FILE"`

	PerplexityAPIKey     string  `env:"PERPLEXITY_API_KEY"`
	PerplexityBaseURL    string  `env:"PERPLEXITY_BASE_URL" envDefault:"https://api.perplexity.ai"`
	PerplexityModel      string  `env:"PERPLEXITY_MODEL" envDefault:"sonar-reasoning-pro"`
	PerplexityTimeoutSec int     `env:"PERPLEXITY_TIMEOUT" envDefault:"120"`
	PerplexityMaxRetries int     `env:"PERPLEXITY_MAX_RETRIES" envDefault:"3"`
	PerplexityRPS        float64 `env:"PERPLEXITY_RPS" envDefault:"0"`

	AnthropicAPIKey  string  `env:"ANTHROPIC_API_KEY"`
	ClaudeBaseURL    string  `env:"CLAUDE_BASE_URL"`
	ClaudeModel      string  `env:"CLAUDE_MODEL" envDefault:"claude-sonnet-4-20250514"`
	ClaudeMaxTokens  int     `env:"CLAUDE_MAX_TOKENS" envDefault:"15000"`
	ClaudeTimeoutSec int     `env:"CLAUDE_TIMEOUT" envDefault:"180"`
	ClaudeMaxRetries int     `env:"CLAUDE_MAX_RETRIES" envDefault:"3"`
	ClaudeRPS        float64 `env:"CLAUDE_RPS" envDefault:"0"`

	// BackoffUnitMS scales the retry wait min(2^n, 30) units.
	BackoffUnitMS int `env:"RETRY_BACKOFF_UNIT_MS" envDefault:"1000"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS" envDefault:"0"`
	JobRetention      time.Duration `env:"JOB_RETENTION" envDefault:"0s"`
	JobSweepSchedule  string        `env:"JOB_SWEEP_SCHEDULE" envDefault:"@every 10m"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	CreateRPS      float64  `env:"RATE_LIMIT_CREATE_RPS" envDefault:"0.5"`
	CreateBurst    int      `env:"RATE_LIMIT_CREATE_BURST" envDefault:"5"`
	CORSOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	RenderChromeEnabled bool          `env:"RENDER_CHROME_ENABLED" envDefault:"true"`
	RenderTimeout       time.Duration `env:"RENDER_TIMEOUT" envDefault:"60s"`
	ImageTimeout        time.Duration `env:"IMAGE_DOWNLOAD_TIMEOUT" envDefault:"30s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) PerplexityTimeout() time.Duration {
	return time.Duration(c.PerplexityTimeoutSec) * time.Second
}

func (c Config) ClaudeTimeout() time.Duration {
	return time.Duration(c.ClaudeTimeoutSec) * time.Second
}

func (c Config) BackoffUnit() time.Duration {
	return time.Duration(c.BackoffUnitMS) * time.Millisecond
}
