package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"tapflow/action"
	"tapflow/audit"
	"tapflow/dwell"
	"tapflow/eventpipe"
	"tapflow/events"
	"tapflow/indicator"
	"tapflow/mqtt"
	"tapflow/reader"
	"tapflow/workflow"
)

const defaultConfigFile = "tapflow.cfg"

// Config is the main configuration structure for tapflow.
type Config struct {
	// "ticket" advances tickets, "register" enrolls new cards
	Mode string `yaml:"mode"`

	// Node name used for broker topics and client ids
	ClientID string `yaml:"client_id"`

	// Log to this file instead of stderr
	LogFile string `yaml:"log_file"`

	// Reader configuration
	Reader reader.Config `yaml:"reader"`

	// Debounce and removal timings
	Dwell dwell.Policy `yaml:"dwell"`

	// Card registry and ticket board files
	Store StoreConfig `yaml:"store"`

	// Ticket transition backend
	API action.Config `yaml:"api"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Status publishing
	MQTT mqtt.Config       `yaml:"mqtt"`
	NATS events.NATSConfig `yaml:"nats"`

	// Outcome journal
	Audit audit.Config `yaml:"audit"`

	// Simulated card events (sim reader only)
	EventPipe eventpipe.Config `yaml:"event_pipe"`
}

// StoreConfig locates the JSON stores.
type StoreConfig struct {
	CardsFile   string `yaml:"cards_file"`
	TicketsFile string `yaml:"tickets_file"`
}

// LoadConfig reads path, then applies defaults and environment overrides.
// A missing file is only an error when the path was given explicitly.
func LoadConfig(path string, explicit bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		log.Warnf("Config %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional
	if err := godotenv.Load(); err == nil {
		log.Debug(".env file loaded")
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, cfg.validate()
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TAPFLOW_API_URL"); v != "" {
		cfg.API.URL = v
	}
	if v := getenv("TAPFLOW_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := getenv("TAPFLOW_MODE"); v != "" {
		cfg.Mode = v
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Mode == "" {
		cfg.Mode = string(workflow.ModeTicket)
	}
	if cfg.ClientID == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("client_id missing and no hostname: %w", err)
		}
		cfg.ClientID = host
	}
	if cfg.Store.CardsFile == "" {
		cfg.Store.CardsFile = "data/cards.json"
	}
	if cfg.Store.TicketsFile == "" {
		cfg.Store.TicketsFile = "data/tickets.json"
	}
	if cfg.API.URL == "" {
		cfg.API.URL = "http://localhost/api"
	}
	cfg.Dwell = cfg.Dwell.WithDefaults()
	return nil
}

func (cfg *Config) validate() error {
	if _, err := workflow.ParseMode(cfg.Mode); err != nil {
		return err
	}
	if err := cfg.Dwell.Validate(); err != nil {
		return fmt.Errorf("dwell: %w", err)
	}
	if cfg.EventPipe.Path != "" && cfg.Reader.Type != "sim" {
		log.Warnf("event_pipe is only used with the sim reader, ignoring %s", cfg.EventPipe.Path)
		cfg.EventPipe.Path = ""
	}
	return nil
}
