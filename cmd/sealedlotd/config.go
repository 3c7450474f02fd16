package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from a YAML file.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// Authority is the single identity permitted to create lots, finalize
	// auctions and configure verifiers. Fixed for the process lifetime.
	Authority string `yaml:"authority"`

	// EventDB is the path of the SQLite event log. Empty means an in-memory
	// sink (events lost on restart).
	EventDB string `yaml:"event_db"`

	// SelectionCert / PaymentCert are PEM certificate paths pinning the COSE
	// signing keys of the two external verifiers. An empty path leaves that
	// circuit unconfigured: the matching proof-gated operation fails with
	// verifier_not_configured until it is set.
	SelectionCert string `yaml:"selection_cert"`
	PaymentCert   string `yaml:"payment_cert"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// LoadConfig reads and validates the YAML config file. Environment variables
// override file values, which lets deployments keep the authority identity
// out of the config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	overrideFromEnv(&cfg.ListenAddr, "SEALEDLOTD_LISTEN_ADDR")
	overrideFromEnv(&cfg.Authority, "SEALEDLOTD_AUTHORITY")
	overrideFromEnv(&cfg.EventDB, "SEALEDLOTD_EVENT_DB")
	overrideFromEnv(&cfg.SelectionCert, "SEALEDLOTD_SELECTION_CERT")
	overrideFromEnv(&cfg.PaymentCert, "SEALEDLOTD_PAYMENT_CERT")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Authority == "" {
		return nil, fmt.Errorf("authority must be set")
	}
	return &cfg, nil
}

func overrideFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
