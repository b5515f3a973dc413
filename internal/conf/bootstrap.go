// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with DOCKETWATCH_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or DOCKETWATCH_DATA_DATABASE_SOURCE: MySQL connection string
//   - REGISTRY_API_KEY or DOCKETWATCH_REGISTRY_API_KEY: registry credential
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with DOCKETWATCH_ prefix
	v.SetEnvPrefix("DOCKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "DOCKETWATCH_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "DOCKETWATCH_DATA_REDIS_ADDR")
	_ = v.BindEnv("registry.api_key", "REGISTRY_API_KEY", "DOCKETWATCH_REGISTRY_API_KEY")
	_ = v.BindEnv("registry.requests_url", "REGISTRY_REQUESTS_URL", "DOCKETWATCH_REGISTRY_REQUESTS_URL")
	_ = v.BindEnv("registry.tracking_url", "REGISTRY_TRACKING_URL", "DOCKETWATCH_REGISTRY_TRACKING_URL")
	_ = v.BindEnv("notify.webhook_url", "DOCKETWATCH_NOTIFY_WEBHOOK_URL")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Registry: &Registry{
			RequestsUrl:        v.GetString("registry.requests_url"),
			TrackingUrl:        v.GetString("registry.tracking_url"),
			ApiKey:             v.GetString("registry.api_key"),
			ProxyUrl:           v.GetString("registry.proxy_url"),
			RateLimitRpm:       v.GetInt32("registry.rate_limit_rpm"),
			MaxRetries:         v.GetInt32("registry.max_retries"),
			Timeout:            durationpb.New(v.GetDuration("registry.timeout")),
			MaxAttachmentBytes: v.GetInt64("registry.max_attachment_bytes"),
			Breaker: &Registry_Breaker{
				Threshold:   v.GetFloat64("registry.breaker.threshold"),
				Window:      durationpb.New(v.GetDuration("registry.breaker.window")),
				Cooldown:    durationpb.New(v.GetDuration("registry.breaker.cooldown")),
				MinRequests: v.GetInt32("registry.breaker.min_requests"),
			},
			Poll: &Registry_Poll{
				Interval:    durationpb.New(v.GetDuration("registry.poll.interval")),
				Timeout:     durationpb.New(v.GetDuration("registry.poll.timeout")),
				MaxAttempts: v.GetInt32("registry.poll.max_attempts"),
			},
		},
		Monitor: &Monitor{
			BatchSize:       v.GetInt32("monitor.batch_size"),
			Concurrency:     v.GetInt32("monitor.concurrency"),
			InterBatchDelay: durationpb.New(v.GetDuration("monitor.inter_batch_delay")),
			Lookback:        durationpb.New(v.GetDuration("monitor.lookback")),
			CaseAttempts:    v.GetInt32("monitor.case_attempts"),
			CaseRetryDelay:  durationpb.New(v.GetDuration("monitor.case_retry_delay")),
			TriggerKeywords: v.GetStringSlice("monitor.trigger_keywords"),
			Cron:            v.GetString("monitor.cron"),
		},
		Notify: &Notify{
			WebhookUrl: v.GetString("notify.webhook_url"),
			Timeout:    durationpb.New(v.GetDuration("notify.timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Registry defaults
	// Note: registry.requests_url, registry.tracking_url and registry.api_key
	// are required from environment or config file.
	v.SetDefault("registry.rate_limit_rpm", 180)
	v.SetDefault("registry.max_retries", 5)
	v.SetDefault("registry.timeout", 30*time.Second)
	v.SetDefault("registry.max_attachment_bytes", int64(10<<20))
	v.SetDefault("registry.breaker.threshold", 10.0)
	v.SetDefault("registry.breaker.window", 5*time.Minute)
	v.SetDefault("registry.breaker.cooldown", 10*time.Minute)
	v.SetDefault("registry.breaker.min_requests", 10)
	v.SetDefault("registry.poll.interval", 3*time.Second)
	v.SetDefault("registry.poll.timeout", 5*time.Minute)
	v.SetDefault("registry.poll.max_attempts", 100)

	// Monitor defaults
	v.SetDefault("monitor.batch_size", 50)
	v.SetDefault("monitor.concurrency", 5)
	v.SetDefault("monitor.inter_batch_delay", 2*time.Second)
	v.SetDefault("monitor.lookback", 24*time.Hour)
	v.SetDefault("monitor.case_attempts", 2)
	v.SetDefault("monitor.case_retry_delay", 5*time.Second)
	v.SetDefault("monitor.trigger_keywords", []string{"judgment", "sentence", "ruling", "hearing"})
	// Every day at 06:00 (seconds minutes hours day month weekday)
	v.SetDefault("monitor.cron", "0 0 6 * * *")

	// Notify defaults
	v.SetDefault("notify.timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Registry == nil || bc.Registry.RequestsUrl == "" {
		missingFields = append(missingFields, "registry.requests_url (REGISTRY_REQUESTS_URL)")
	}
	if bc.Registry == nil || bc.Registry.TrackingUrl == "" {
		missingFields = append(missingFields, "registry.tracking_url (REGISTRY_TRACKING_URL)")
	}
	if bc.Registry == nil || bc.Registry.ApiKey == "" {
		missingFields = append(missingFields, "registry.api_key (REGISTRY_API_KEY)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
