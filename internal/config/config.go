package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	WhatsAppAPIURL string `env:"WHATSAPP_API_URL,required=true"`
	WhatsAppAPIKey string `env:"WHATSAPP_API_KEY,required=true"`
	CompanyName    string `env:"COMPANY_NAME,required=true"`
	CompanyPhone   string `env:"COMPANY_PHONE,required=true"`

	// BusinessTimezone fixes what "today" means for dedup and message
	// composition, independent of where the process runs.
	BusinessTimezone string `env:"BUSINESS_TIMEZONE,default=America/Sao_Paulo"`
	DispatchCron     string `env:"DISPATCH_CRON,default=0 8 * * *"`

	SendMaxAttempts       int `env:"SEND_MAX_ATTEMPTS,default=3"`
	SendRetryDelaySeconds int `env:"SEND_RETRY_DELAY_SECONDS,default=5"`
	SendTimeoutSeconds    int `env:"SEND_TIMEOUT_SECONDS,default=20"`
	InvoiceDelaySeconds   int `env:"INVOICE_DELAY_SECONDS,default=3"`
	RateLimitPerSec       int `env:"RATE_LIMIT_PER_SEC,default=1"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// BusinessLocation resolves the configured business time zone.
func (c *Config) BusinessLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid business timezone %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

func (c *Config) SendRetryDelay() time.Duration {
	return time.Duration(c.SendRetryDelaySeconds) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func (c *Config) InvoiceDelay() time.Duration {
	return time.Duration(c.InvoiceDelaySeconds) * time.Second
}
