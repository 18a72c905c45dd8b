// Package config reads the server's configuration from environment
// variables, following the flat environ.get(name, default) style the
// reference implementation used for the same settings.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Server holds the server's immutable startup configuration.
type Server struct {
	BindHost       string
	BindPort       int
	Allowlist      []string
	CertPath       string
	KeyPath        string
	TargetUser     string
	InheritBaseEnv bool
}

// LoadServer reads PSYNC_SERVER_IP, PSYNC_SERVER_PORT, PSYNC_ORIGINS,
// PSYNC_USER, SSL_CERT_PATH and SSL_KEY_PATH, applying their documented
// defaults. useBaseEnv comes from the -E/--use-base-env CLI flag since it
// has no environment-variable form.
func LoadServer(useBaseEnv bool) (Server, error) {
	port, err := strconv.Atoi(getenv("PSYNC_SERVER_PORT", "5000"))
	if err != nil {
		return Server{}, err
	}

	return Server{
		BindHost:       getenv("PSYNC_SERVER_IP", "0.0.0.0"),
		BindPort:       port,
		Allowlist:      strings.Fields(getenv("PSYNC_ORIGINS", "localhost 127.0.0.1")),
		CertPath:       expandHome(getenv("SSL_CERT_PATH", "./cert.pem")),
		KeyPath:        expandHome(getenv("SSL_KEY_PATH", "./key.pem")),
		TargetUser:     os.Getenv("PSYNC_USER"),
		InheritBaseEnv: useBaseEnv,
	}, nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
