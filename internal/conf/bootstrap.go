package conf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// WHATSAPP_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or WHATSAPP_DATA_DATABASE_SOURCE: MySQL connection string
//   - WHATSAPP_ACCESS_TOKEN: Cloud API bearer token
//   - WHATSAPP_PHONE_NUMBER_ID: Cloud API sender id
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WHATSAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow the direct environment variable names the original deployment
	// used, in addition to the prefixed form.
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "WHATSAPP_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "WHATSAPP_DATA_REDIS_ADDR")
	_ = v.BindEnv("whatsapp.api_url", "WHATSAPP_API_URL")
	_ = v.BindEnv("whatsapp.phone_number_id", "WHATSAPP_PHONE_NUMBER_ID")
	_ = v.BindEnv("whatsapp.access_token", "WHATSAPP_ACCESS_TOKEN")
	_ = v.BindEnv("whatsapp.verify_token", "WHATSAPP_VERIFY_TOKEN")
	_ = v.BindEnv("breaker.failure_threshold", "CIRCUIT_BREAKER_FAILURE_THRESHOLD")
	_ = v.BindEnv("breaker.recovery_timeout", "CIRCUIT_BREAKER_RECOVERY_TIMEOUT")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		WhatsApp: &WhatsApp{
			ApiUrl:          v.GetString("whatsapp.api_url"),
			PhoneNumberId:   v.GetString("whatsapp.phone_number_id"),
			AccessToken:     v.GetString("whatsapp.access_token"),
			VerifyToken:     v.GetString("whatsapp.verify_token"),
			DefaultLanguage: v.GetString("whatsapp.default_language"),
			Timeout:         durationpb.New(v.GetDuration("whatsapp.timeout")),
		},
		Breaker: &Breaker{
			FailureThreshold: v.GetInt32("breaker.failure_threshold"),
			RecoveryTimeout:  durationpb.New(getSeconds(v, "breaker.recovery_timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// getSeconds reads a duration value that deployments historically set as a
// bare number of seconds (CIRCUIT_BREAKER_RECOVERY_TIMEOUT=60). A bare
// integer is taken as seconds; anything else goes through the usual
// duration-string parsing ("60s", "1m").
func getSeconds(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return v.GetDuration(key)
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", time.Minute)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Provider defaults
	v.SetDefault("whatsapp.api_url", "https://graph.facebook.com/v18.0")
	v.SetDefault("whatsapp.default_language", "es")
	v.SetDefault("whatsapp.timeout", 30*time.Second)

	// Circuit breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 60*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present.
// It returns an error listing all missing required fields at once.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}
	if bc.WhatsApp == nil || bc.WhatsApp.AccessToken == "" {
		missingFields = append(missingFields, "whatsapp.access_token (WHATSAPP_ACCESS_TOKEN)")
	}
	if bc.WhatsApp == nil || bc.WhatsApp.PhoneNumberId == "" {
		missingFields = append(missingFields, "whatsapp.phone_number_id (WHATSAPP_PHONE_NUMBER_ID)")
	}
	if bc.Breaker != nil && bc.Breaker.FailureThreshold < 0 {
		missingFields = append(missingFields, "breaker.failure_threshold (must be positive)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
