package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from environment variables using `env`, `envDefault` and
// `envSeparator` struct tags.
//
//	type Config struct {
//	    IndexName string   `env:"SEARCH_INDEX" envDefault:"listings"`
//	    Brokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
