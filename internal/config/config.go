package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/felo/mailtext/internal/charset"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DBPath string

	// Email folder settings
	EmailsPath string

	// Indexing settings
	Workers    int
	SampleSize int

	// Dev switches to the verbose developer logger
	Dev bool
}

// Default returns default configuration
func Default() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".mailtext")

	return &Config{
		Host:       "localhost",
		Port:       "8080",
		DBPath:     filepath.Join(dataDir, "emails.db"),
		EmailsPath: "./emails",
		Workers:    runtime.NumCPU() * 2,
		SampleSize: charset.DefaultSampleSize,
	}
}

// FromEnv returns the defaults overlaid with MAILTEXT_* environment variables
func FromEnv() (*Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()

	for key, dst := range map[string]*string{
		"MAILTEXT_HOST":   &c.Host,
		"MAILTEXT_PORT":   &c.Port,
		"MAILTEXT_DB":     &c.DBPath,
		"MAILTEXT_EMAILS": &c.EmailsPath,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	for key, dst := range map[string]*int{
		"MAILTEXT_WORKERS":     &c.Workers,
		"MAILTEXT_SAMPLE_SIZE": &c.SampleSize,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive integer", key, v)
		}
		*dst = n
	}

	if v, ok := lookup("MAILTEXT_DEV"); ok && v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAILTEXT_DEV %q: %w", v, err)
		}
		c.Dev = dev
	}
	return c, nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
