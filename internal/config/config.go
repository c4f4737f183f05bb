package config

import (
	"errors"
	"time"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	Stripe Stripe `envPrefix:"STRIPE_"`
}

type Stripe struct {
	SecretKey        string        `env:"SECRET_KEY"`
	WebhookSecret    string        `env:"WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
	APITimeout       time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	SuccessURL       string        `env:"SUCCESS_URL"`
	CancelURL        string        `env:"CANCEL_URL"`
	PortalReturnURL  string        `env:"PORTAL_RETURN_URL"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
}

type Database struct {
	Driver       string        `env:"DATABASE_DRIVER" envDefault:"mysql"`
	URL          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"10"`
	QueryTimeout time.Duration `env:"DATABASE_QUERY_TIMEOUT" envDefault:"5s"`
}

func (c *Config) Addr() string {
	return c.HTTP.Host + ":" + c.HTTP.Port
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	errs := c.common()
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	return errors.Join(errs...)
}

// ValidateSync reports settings the reconciliation command needs. It never
// verifies webhooks, so the webhook secret is optional.
func (c *Config) ValidateSync() error {
	return errors.Join(c.common()...)
}

func (c *Config) common() []error {
	var errs []error
	if c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, errors.New("DATABASE_DRIVER must be mysql or sqlite"))
	}
	return errs
}
