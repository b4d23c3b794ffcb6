// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment
// variables, with CLI flag overrides.
package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	Server   *Server
	Data     *Data
	WhatsApp *WhatsApp
	Breaker  *Breaker
	Log      *Log
}

// Server holds transport configuration.
type Server struct {
	Http *ServerHTTP
}

// ServerHTTP configures the HTTP listener.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds persistence configuration.
type Data struct {
	Database *Database
	Redis    *Redis
}

// Database configures the MySQL connection.
type Database struct {
	Driver string
	Source string
}

// Redis configures the cache connection.
type Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// WhatsApp holds provider endpoint and credential configuration.
type WhatsApp struct {
	ApiUrl          string
	PhoneNumberId   string
	AccessToken     string
	VerifyToken     string
	DefaultLanguage string
	Timeout         *durationpb.Duration
}

// Breaker holds the circuit breaker trip policy parameters.
type Breaker struct {
	FailureThreshold int32
	RecoveryTimeout  *durationpb.Duration
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
