package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionflow OptionflowConfig `yaml:"optionflow"`
	Feed       FeedConfig       `yaml:"feed"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	// URL is the combined-stream websocket endpoint, topics are appended
	// to the path separated by '/'.
	URL              string        `yaml:"url"`
	Quote            string        `yaml:"quote"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// BridgeBuffer bounds how many undelivered events a session may queue.
	BridgeBuffer int `yaml:"bridge_buffer"`
	// MinEventInterval drops events arriving closer together than this.
	// Zero disables throttling.
	MinEventInterval time.Duration `yaml:"min_event_interval"`
}

type SnapshotConfig struct {
	Assets         []string      `yaml:"assets"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	// Interval between snapshot runs. Zero means run once and exit.
	Interval time.Duration `yaml:"interval"`
}

type StorageConfig struct {
	// Backend selects the store implementation: "dynamodb" or "mongodb".
	Backend string       `yaml:"backend"`
	Dynamo  DynamoConfig `yaml:"dynamodb"`
	Mongo   MongoConfig  `yaml:"mongodb"`
}

type DynamoConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	OptionsTable     string `yaml:"options_table"`
	IndexPricesTable string `yaml:"index_prices_table"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
	Region     string `yaml:"region"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	defaultFeedURL          = "wss://nbstream.binance.com/eoptions/ws"
	defaultQuote            = "USDT"
	defaultHandshakeTimeout = 10 * time.Second
	defaultBridgeBuffer     = 256
	defaultSessionTimeout   = 20 * time.Second
	defaultMongoTimeout     = 3 * time.Second
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			URL:              defaultFeedURL,
			Quote:            defaultQuote,
			HandshakeTimeout: defaultHandshakeTimeout,
			BridgeBuffer:     defaultBridgeBuffer,
		},
		Snapshot: SnapshotConfig{
			SessionTimeout: defaultSessionTimeout,
		},
		Storage: StorageConfig{
			Backend: "dynamodb",
			Dynamo: DynamoConfig{
				OptionsTable:     "binance-options",
				IndexPricesTable: "binance-index-prices",
			},
			Mongo: MongoConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "binance-options",
				ConnectTimeout: defaultMongoTimeout,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Credentials and endpoints come from the environment when set.
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Storage.Dynamo.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Storage.Dynamo.SecretAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Storage.Dynamo.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		config.Storage.Mongo.URI = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Optionflow.Name == "" {
		return fmt.Errorf("optionflow.name is required")
	}

	if cfg.Optionflow.Version == "" {
		return fmt.Errorf("optionflow.version is required")
	}

	if len(cfg.Snapshot.Assets) == 0 {
		return fmt.Errorf("snapshot.assets must list at least one asset")
	}
	for _, asset := range cfg.Snapshot.Assets {
		if strings.TrimSpace(asset) == "" {
			return fmt.Errorf("snapshot.assets must not contain empty entries")
		}
	}

	if cfg.Snapshot.SessionTimeout <= 0 {
		return fmt.Errorf("snapshot.session_timeout must be greater than 0")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if cfg.Feed.BridgeBuffer <= 0 {
		return fmt.Errorf("feed.bridge_buffer must be greater than 0")
	}
	if cfg.Feed.MinEventInterval < 0 {
		return fmt.Errorf("feed.min_event_interval must not be negative")
	}

	switch cfg.Storage.Backend {
	case "dynamodb":
		if cfg.Storage.Dynamo.OptionsTable == "" || cfg.Storage.Dynamo.IndexPricesTable == "" {
			return fmt.Errorf("storage.dynamodb.options_table and storage.dynamodb.index_prices_table are required")
		}
	case "mongodb":
		if cfg.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required")
		}
		if cfg.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongodb.database is required")
		}
	default:
		return fmt.Errorf("storage.backend '%s' is not supported", cfg.Storage.Backend)
	}

	if cfg.Metrics.CloudWatch && cfg.Metrics.Namespace == "" {
		return fmt.Errorf("metrics.namespace is required when CloudWatch metrics are enabled")
	}

	return nil
}
