// Package config provides functionality for loading and managing the configuration
// of the worker and intake processes.
//
// Configuration is read with viper from an optional YAML file and from
// environment variables prefixed with LECTOR_ (for example LECTOR_BROKER_URL or
// LECTOR_CHUNKING_MAX_CHARS), and is validated with go-playground/validator
// before being handed to the rest of the process.
package config
