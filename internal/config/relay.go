package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// RelayConfig configures the stream relay lambda.
type RelayConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	Publisher string `env:"PUBLISHER" envDefault:"kafka"`
	BrokerConfig
}

// LoadRelay parses the relay environment and validates the result.
func LoadRelay() (RelayConfig, error) {
	cfg, err := env.ParseAs[RelayConfig]()
	if err != nil {
		return RelayConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}

// Validate reports every rule the relay configuration breaks. The relay has
// no use for PUBLISHER=none.
func (c RelayConfig) Validate() error {
	var errs []error

	switch c.Publisher {
	case PublisherKafka, PublisherNATS:
		if err := c.validate(c.Publisher); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("PUBLISHER %q is not one of kafka, nats", c.Publisher))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
