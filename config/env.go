package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\${([^}]+)}`)

// ExpandEnvStrict expands ${VAR} references and fails on unset variables.
func ExpandEnvStrict(s string) (string, error) {
	for _, m := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			return "", fmt.Errorf("environment variable %s is not set", m[1])
		}
	}
	return os.ExpandEnv(s), nil
}

// ApplyEnv overlays the deployment environment variables on cfg.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = port
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("NODE_NAME"); ok {
		cfg.Node.Name = v
	}
	if v, ok := os.LookupEnv("LEADER_IDENTITY"); ok {
		cfg.Node.LeaderIdentity = v
	}
	if v, ok := os.LookupEnv("SELF_ADDRESS"); ok {
		cfg.Node.SelfAddress = v
	}
	if v, ok := os.LookupEnv("REPLICA_ADDRESSES"); ok {
		cfg.Node.Replicas = SplitList(v)
	}
	if v, ok := os.LookupEnv("REPLICA_COUNT"); ok {
		count, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("REPLICA_COUNT must be an integer: %w", err)
		}
		cfg.Node.ReplicaCount = count
	}
	if v, ok := os.LookupEnv("LEADER_URL"); ok {
		cfg.Proxy.LeaderURL = v
	}
	if v, ok := os.LookupEnv("REPLICA_SERVICE_URL"); ok {
		cfg.Proxy.ReadURL = v
	}
	return nil
}

// SplitList splits a comma separated list, dropping blank entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
