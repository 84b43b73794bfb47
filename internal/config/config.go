// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads service configuration from config.yaml and
// environment variables. ${VAR} references in the YAML are expanded
// from the environment before parsing, so credentials can stay out of
// the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EmailConfig holds IMAP connection and consumption settings.
type EmailConfig struct {
	Server           string `yaml:"server"`
	Port             int    `yaml:"port"`
	UseSSL           bool   `yaml:"use_ssl"`
	Auth             string `yaml:"auth"` // "password" or "oauth2"
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	TokenURL         string `yaml:"token_url"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	InboxFolder      string `yaml:"inbox_folder"`
	CheckInterval    int    `yaml:"check_interval"` // seconds
	MarkAsRead       bool   `yaml:"mark_as_read"`
	DeleteAfterPrint bool   `yaml:"delete_after_print"`
}

// PrinterConfig holds print destination and job tracking settings.
type PrinterConfig struct {
	Name              string `yaml:"name"`
	PaperSize         string `yaml:"paper_size"`
	Duplex            bool   `yaml:"duplex"`
	Color             bool   `yaml:"color"`
	WaitForCompletion bool   `yaml:"wait_for_completion"`
	JobTimeout        int    `yaml:"job_timeout"`   // seconds
	PollInterval      int    `yaml:"poll_interval"` // seconds
}

// FilterConfig controls which messages and attachments are printed.
type FilterConfig struct {
	AllowedSenders     []string `yaml:"allowed_senders"`
	BlockedSenders     []string `yaml:"blocked_senders"`
	SubjectKeywords    []string `yaml:"subject_keywords"`
	MaxAttachmentSize  int64    `yaml:"max_attachment_size"`
	AllowedAttachments []string `yaml:"allowed_attachments"`
}

// ProcessingConfig controls how message content becomes print documents.
type ProcessingConfig struct {
	PrintTextEmails     bool `yaml:"print_text_emails"`
	PrintHTMLEmails     bool `yaml:"print_html_emails"`
	PrintAttachments    bool `yaml:"print_attachments"`
	ConvertHTMLToPDF    bool `yaml:"convert_html_to_pdf"`
	MaxPagesPerDocument int  `yaml:"max_pages_per_document"`
}

// DedupConfig controls the deduplication ledger.
type DedupConfig struct {
	Capacity  int    `yaml:"capacity"`
	StateFile string `yaml:"state_file"`
	RedisURL  string `yaml:"redis_url"`
}

// HistoryConfig enables the optional Postgres job history archive.
type HistoryConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// APIConfig holds the HTTP control surface settings.
type APIConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config holds all configuration for the mailprint service.
type Config struct {
	Email      EmailConfig      `yaml:"email"`
	Printer    PrinterConfig    `yaml:"printer"`
	Filters    FilterConfig     `yaml:"filters"`
	Processing ProcessingConfig `yaml:"processing"`
	Dedup      DedupConfig      `yaml:"dedup"`
	History    HistoryConfig    `yaml:"history"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the built-in configuration, matching a typical
// Gmail-to-default-printer setup.
func Default() *Config {
	return &Config{
		Email: EmailConfig{
			Server:        "imap.gmail.com",
			Port:          993,
			UseSSL:        true,
			Auth:          "password",
			InboxFolder:   "INBOX",
			CheckInterval: 30,
			MarkAsRead:    true,
		},
		Printer: PrinterConfig{
			Name:              "default",
			PaperSize:         "A4",
			Color:             true,
			WaitForCompletion: true,
			JobTimeout:        300,
			PollInterval:      2,
		},
		Filters: FilterConfig{
			MaxAttachmentSize:  10 * 1024 * 1024,
			AllowedAttachments: []string{".pdf", ".txt", ".jpg", ".jpeg", ".png", ".gif"},
		},
		Processing: ProcessingConfig{
			PrintTextEmails:     true,
			PrintHTMLEmails:     true,
			PrintAttachments:    true,
			ConvertHTMLToPDF:    true,
			MaxPagesPerDocument: 50,
		},
		Dedup: DedupConfig{
			Capacity:  500,
			StateFile: "mailprint-ledger.json",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, layering the file over the
// defaults and applying environment overrides for credentials. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg.Email.Username = firstNonEmpty(os.Getenv("MAILPRINT_EMAIL_USERNAME"), cfg.Email.Username)
	cfg.Email.Password = firstNonEmpty(os.Getenv("MAILPRINT_EMAIL_PASSWORD"), cfg.Email.Password)
	cfg.API.APIKey = firstNonEmpty(os.Getenv("MAILPRINT_API_KEY"), cfg.API.APIKey)
	cfg.Dedup.RedisURL = firstNonEmpty(os.Getenv("MAILPRINT_REDIS_URL"), cfg.Dedup.RedisURL)
	cfg.History.DatabaseURL = firstNonEmpty(os.Getenv("MAILPRINT_DATABASE_URL"), cfg.History.DatabaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	var errs []string

	switch c.Email.Auth {
	case "password", "":
		if c.Email.Username == "" {
			errs = append(errs, "email username is required")
		}
		if c.Email.Password == "" {
			errs = append(errs, "email password is required")
		}
	case "oauth2":
		if c.Email.Username == "" {
			errs = append(errs, "email username is required")
		}
		if c.Email.TokenURL == "" || c.Email.ClientID == "" || c.Email.ClientSecret == "" {
			errs = append(errs, "oauth2 auth requires token_url, client_id and client_secret")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown email auth mode %q", c.Email.Auth))
	}

	if c.Email.Port <= 0 {
		errs = append(errs, "email port must be positive")
	}
	if c.Email.CheckInterval <= 0 {
		errs = append(errs, "email check_interval must be positive")
	}
	if strings.TrimSpace(c.Printer.Name) == "" {
		errs = append(errs, "printer name cannot be empty")
	}
	if c.Printer.JobTimeout <= 0 {
		errs = append(errs, "printer job_timeout must be positive")
	}
	if c.Printer.PollInterval <= 0 {
		errs = append(errs, "printer poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CheckInterval returns the mail poll interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Email.CheckInterval) * time.Second
}

// JobTimeout returns the per-job completion deadline as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Printer.JobTimeout) * time.Second
}

// PollInterval returns the spooler poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Printer.PollInterval) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
