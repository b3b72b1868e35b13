// Package config loads the marketd configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/course_marketplace/internal/revsplit"
)

// Scheme is the default talent match share scheme, in basis points.
type Scheme struct {
	TalentShare  uint64 `yaml:"talent_share"`
	CoachShare   uint64 `yaml:"coach_share"`
	SponsorShare uint64 `yaml:"sponsor_share"`
	TeacherShare uint64 `yaml:"teacher_share"`
}

// Config holds the daemon settings.
type Config struct {
	Addr     string `yaml:"addr"`
	DBPath   string `yaml:"db_path"`
	Owner    string `yaml:"owner"`
	Treasury string `yaml:"treasury"`
	FeeBP    uint64 `yaml:"fee_bp"`  // Marketplace sale fee in basis points
	Genesis  uint64 `yaml:"genesis"` // GT minted to the owner at startup
	Scheme   Scheme `yaml:"scheme"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Addr:     ":8080",
		DBPath:   "data/marketd.db",
		Owner:    "owner",
		Treasury: "treasury",
		FeeBP:    250,
		Scheme: Scheme{
			CoachShare:   3000,
			SponsorShare: 3000,
			TeacherShare: 4000,
		},
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for internal consistency.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if c.Treasury == "" {
		return fmt.Errorf("treasury is required")
	}
	if c.FeeBP > revsplit.TotalBasisPoints {
		return fmt.Errorf("fee_bp %d exceeds %d", c.FeeBP, revsplit.TotalBasisPoints)
	}
	sum := c.Scheme.TalentShare + c.Scheme.CoachShare + c.Scheme.SponsorShare + c.Scheme.TeacherShare
	if sum != revsplit.TotalBasisPoints {
		return fmt.Errorf("scheme shares sum to %d, want %d", sum, revsplit.TotalBasisPoints)
	}
	return nil
}
