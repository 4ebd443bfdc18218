// Package config loads the registry's process configuration from
// environment variables, per spec.md §6's table, optionally seeded
// from a ".env" file for local development.
//
// Grounded on _examples/bnema-gordon's env-var-first configuration
// style; replaces the teacher's CUE-schema config loader
// (cmd/ocisrv/schema.cue, defaults.cue) since this system's config
// surface is the flat env-var contract the specification mandates.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds every process-level setting spec.md §6 names.
type Config struct {
	// MappingFile is the path to the durable mapping index (C5).
	MappingFile string
	// StorageDir is the root of the local blob/manifest store (C3).
	StorageDir string
	// Host is the bind address for the HTTP surface.
	Host string
	// Port is the bind port for the HTTP surface.
	Port string
	// RPCURL overrides the remote backend's default RPC endpoint.
	// Empty means "use the backend's default".
	RPCURL string
	// WarmStorageAddress overrides the remote backend's default
	// storage/warm-storage contract address. Empty means "use the
	// backend's default".
	WarmStorageAddress string
	// RegistryName is used as the WWW-Authenticate realm and as the
	// "source" tag recorded on every remote dataset this process
	// creates (C7).
	RegistryName string
	// StrictMapping, when true, refuses to start on a mapping file
	// that exists but contains malformed JSON, per spec.md §7's
	// fatal-condition note. Defaults to true; set
	// MAPPING_LENIENT=true to fall back to an empty mapping instead.
	StrictMapping bool
}

const (
	envMappingFile        = "MAPPING_FILE"
	envStorageDir         = "STORAGE_DIR"
	envHost               = "HOST"
	envPort               = "PORT"
	envRPCURL             = "RPC_URL"
	envWarmStorageAddress = "WARM_STORAGE_ADDRESS"
	envRegistryName       = "REGISTRY_NAME"
	envMappingLenient     = "MAPPING_LENIENT"
)

// Load reads configuration from the environment, first loading a
// ".env" file in the working directory if one is present (a missing
// .env is not an error; godotenv.Load is best-effort here so
// production deployments that set real environment variables never
// need one).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		MappingFile:        getenv(envMappingFile, "image_mapping.json"),
		StorageDir:         getenv(envStorageDir, "storage"),
		Host:               getenv(envHost, "0.0.0.0"),
		Port:               getenv(envPort, "5002"),
		RPCURL:             os.Getenv(envRPCURL),
		WarmStorageAddress: os.Getenv(envWarmStorageAddress),
		RegistryName:       getenv(envRegistryName, "ociregistry"),
		StrictMapping:      os.Getenv(envMappingLenient) != "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Addr returns the host:port pair net.Listen expects.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
