package config

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Env holds the process-wide settings read from the environment.
type Env struct {
	DataDir  string `env:"FIELDLAB_DATA_DIR"  envDefault:"data/outputs"`
	LogLevel string `env:"FIELDLAB_LOG_LEVEL" envDefault:"info"`
	Workers  int    `env:"FIELDLAB_WORKERS"`
	Metrics  bool   `env:"FIELDLAB_METRICS"`
}

// ParseEnv loads Env from the environment. Workers falls back to the
// number of CPUs.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if e.Workers <= 0 {
		e.Workers = runtime.NumCPU()
	}
	return e, nil
}
