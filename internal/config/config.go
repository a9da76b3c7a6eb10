package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Discoverer  DiscovererConfig  `mapstructure:"discoverer"`
	Server      ServerConfig      `mapstructure:"server"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SourceConfig describes where files are fetched from.
// Type is "s3" (Polygon flat files and any S3-compatible store) or "http".
type SourceConfig struct {
	Type      string        `mapstructure:"type"`
	Endpoint  string        `mapstructure:"endpoint"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	Bucket    string        `mapstructure:"bucket"`
	Region    string        `mapstructure:"region"`
	Prefix    string        `mapstructure:"prefix"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DestinationConfig describes the S3-compatible bucket files are pushed to.
type DestinationConfig struct {
	Type         string        `mapstructure:"type"`
	Endpoint     string        `mapstructure:"endpoint"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	UseSSL       bool          `mapstructure:"use_ssl"`
	Bucket       string        `mapstructure:"bucket"`
	Region       string        `mapstructure:"region"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	SkipExisting bool          `mapstructure:"skip_existing"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	ID              string        `mapstructure:"id"`
	Concurrency     int           `mapstructure:"concurrency"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ClaimAttempts   int           `mapstructure:"claim_attempts"`
	TempDir         string        `mapstructure:"temp_dir"`
	StoreRetryDelay time.Duration `mapstructure:"store_retry_delay"`
	ReportTimeout   time.Duration `mapstructure:"report_timeout"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
}

type DiscovererConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Load reads configuration from an optional file, .env and the environment.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Names used by the deployment environment
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("worker.id", "WORKER_ID")
	v.BindEnv("source.access_key", "POLYGON_API_KEY")
	v.BindEnv("destination.access_key", "B2_KEY_ID")
	v.BindEnv("destination.secret_key", "B2_APPLICATION_KEY")
	v.BindEnv("destination.bucket", "B2_BUCKET_NAME")
	v.BindEnv("destination.endpoint", "B2_ENDPOINT_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Database.applyURL(); err != nil {
		return nil, err
	}
	if cfg.Worker.ID == "" {
		cfg.Worker.ID = DefaultWorkerID()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/download_tracker.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("source.type", "s3")
	v.SetDefault("source.endpoint", "https://files.polygon.io")
	// Polygon ignores the secret but the signer needs a non-empty one
	v.SetDefault("source.secret_key", "flatsync")
	v.SetDefault("source.use_ssl", true)
	v.SetDefault("source.bucket", "flatfiles")
	v.SetDefault("source.region", "us-east-1")
	v.SetDefault("source.prefix", "us_stocks_sip/day_aggs_v1")
	v.SetDefault("source.timeout", 10*time.Minute)

	v.SetDefault("destination.type", "")
	v.SetDefault("destination.use_ssl", true)
	v.SetDefault("destination.skip_existing", false)
	v.SetDefault("destination.timeout", 10*time.Minute)

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.poll_interval", 10*time.Second)
	v.SetDefault("worker.max_retries", 2)
	v.SetDefault("worker.claim_attempts", 5)
	v.SetDefault("worker.temp_dir", "./temp_worker_downloads")
	v.SetDefault("worker.store_retry_delay", 2*time.Second)
	v.SetDefault("worker.report_timeout", 2*time.Minute)
	v.SetDefault("worker.stale_after", time.Duration(0))

	v.SetDefault("discoverer.timezone", "UTC")
}

// DefaultWorkerID builds a worker identifier unique across hosts.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("worker-%s-%s", host, strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// ValidateSource reports missing settings needed to read from the source.
func (c *Config) ValidateSource() error {
	switch c.Source.Type {
	case "s3":
		var missing []string
		if c.Source.AccessKey == "" {
			missing = append(missing, "source.access_key (POLYGON_API_KEY)")
		}
		if c.Source.Endpoint == "" {
			missing = append(missing, "source.endpoint")
		}
		if c.Source.Bucket == "" {
			missing = append(missing, "source.bucket")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
		}
	case "http":
		if c.Source.BaseURL == "" {
			return fmt.Errorf("missing required configuration: source.base_url")
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}
	return nil
}

// ValidateDestination reports missing settings needed to push to the destination.
func (c *Config) ValidateDestination() error {
	var missing []string
	if c.Destination.AccessKey == "" {
		missing = append(missing, "destination.access_key (B2_KEY_ID)")
	}
	if c.Destination.SecretKey == "" {
		missing = append(missing, "destination.secret_key (B2_APPLICATION_KEY)")
	}
	if c.Destination.Bucket == "" {
		missing = append(missing, "destination.bucket (B2_BUCKET_NAME)")
	}
	if c.Destination.Endpoint == "" {
		missing = append(missing, "destination.endpoint (B2_ENDPOINT_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InferRegion extracts the region from B2-style endpoints such as
// s3.us-west-000.backblazeb2.com. It returns an empty string otherwise.
func InferRegion(endpoint string) string {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}
	parts := strings.Split(host, ".")
	if len(parts) > 2 && parts[0] == "s3" {
		return parts[1]
	}
	return ""
}
