package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHTTPPort        = 8000
	DefaultUpstreamURL     = "http://kvstore:8000"
	DefaultUpstreamTimeout = 10 // seconds
	DefaultLeaderIdentity  = "0"
)

type AuthConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	PrivateKey    string `json:"private_key" yaml:"private_key"`
	PublicKey     string `json:"public_key" yaml:"public_key"`
	TokenDuration int    `json:"token_duration" yaml:"token_duration"` // in seconds
}

type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
}

// NodeConfig describes a store node. Leadership is derived from Name and
// LeaderIdentity once at startup.
type NodeConfig struct {
	Name           string   `json:"name" yaml:"name"`
	LeaderIdentity string   `json:"leader_identity" yaml:"leader_identity"`
	SelfAddress    string   `json:"self_address" yaml:"self_address"`
	Replicas       []string `json:"replicas" yaml:"replicas"`
	ReplicaCount   int      `json:"replica_count" yaml:"replica_count"`
	// 0 disables the per-request replication timeout.
	ReplicationTimeout int `json:"replication_timeout" yaml:"replication_timeout"` // in seconds
}

type ProxyConfig struct {
	LeaderURL       string `json:"leader_url" yaml:"leader_url"`
	ReadURL         string `json:"read_url" yaml:"read_url"`
	UpstreamTimeout int    `json:"upstream_timeout" yaml:"upstream_timeout"` // in seconds
	HealthInterval  int    `json:"health_interval" yaml:"health_interval"`   // in seconds, 0 disables probing
}

// DiscoveryConfig resolves the replica set from the Kubernetes API at startup.
type DiscoveryConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Kubeconfig    string `json:"kubeconfig" yaml:"kubeconfig"`
	Namespace     string `json:"namespace" yaml:"namespace"`
	LabelSelector string `json:"label_selector" yaml:"label_selector"`
	Port          int    `json:"port" yaml:"port"`
}

type Config struct {
	HTTPPort  int             `json:"http_port" yaml:"http_port"`
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Node      NodeConfig      `json:"node" yaml:"node"`
	Proxy     ProxyConfig     `json:"proxy" yaml:"proxy"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	TLS       TLSConfig       `json:"tls" yaml:"tls"`
}

func Default() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		HTTPPort: DefaultHTTPPort,
		LogLevel: "info",
		Node: NodeConfig{
			Name:           hostname,
			LeaderIdentity: DefaultLeaderIdentity,
		},
		Proxy: ProxyConfig{
			LeaderURL:       DefaultUpstreamURL,
			ReadURL:         DefaultUpstreamURL,
			UpstreamTimeout: DefaultUpstreamTimeout,
		},
		Discovery: DiscoveryConfig{
			Namespace: "default",
			Port:      DefaultHTTPPort,
		},
		Auth: AuthConfig{TokenDuration: 3600},
	}
}

// LoadConfig reads a JSON or YAML file on top of the defaults, expanding
// ${VAR} references first. An empty filename yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(expanded), cfg)
	default:
		err = json.Unmarshal([]byte(expanded), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", c.HTTPPort)
	}
	if c.Node.ReplicaCount < 0 {
		return fmt.Errorf("replica_count must not be negative, got %d", c.Node.ReplicaCount)
	}
	if c.Node.ReplicationTimeout < 0 {
		return fmt.Errorf("replication_timeout must not be negative")
	}
	if c.Proxy.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream_timeout must be positive, got %d", c.Proxy.UpstreamTimeout)
	}
	for name, raw := range map[string]string{"leader_url": c.Proxy.LeaderURL, "read_url": c.Proxy.ReadURL} {
		if _, err := url.Parse(NormalizeURL(raw)); err != nil || raw == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	if c.Discovery.Enabled && c.Discovery.LabelSelector == "" {
		return fmt.Errorf("discovery requires label_selector")
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls requires cert_file and key_file")
	}
	return nil
}

// ReplicaSet returns the normalized replica URLs without the node's own address.
func (n NodeConfig) ReplicaSet() []string {
	self := NormalizeURL(n.SelfAddress)
	replicas := make([]string, 0, len(n.Replicas))
	for _, r := range n.Replicas {
		r = NormalizeURL(strings.TrimSpace(r))
		if r == "" || (self != "" && r == self) {
			continue
		}
		replicas = append(replicas, r)
	}
	return replicas
}

// NormalizeURL turns host:port into http://host:port and strips trailing slashes.
func NormalizeURL(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if addr == "" {
		return ""
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

// Load is LoadConfig followed by ApplyEnv and Validate.
func Load(filename string) (*Config, error) {
	cfg, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
