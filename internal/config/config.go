package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config wraps a viper instance and provides typed accessors for every
// configuration key. Create one via New().
type Config struct {
	v *viper.Viper
}

// New initialises a Config by loading values from environment
// variables, the config file, and compiled defaults (in that priority
// order; CLI flags, bound later via BindFlags, take highest priority).
func New() (*Config, error) {
	v := viper.New()

	// Register compiled defaults for all known options.
	for _, o := range AgentOptions {
		v.SetDefault(o.Key, o.Default)
	}

	// Attempt to load a config file from the current directory or
	// the system-wide location.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/zexio/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables are prefixed with ZEXIO_ and use
	// underscores in place of dots (e.g. ZEXIO_AGENT_MESH_SECRET).
	v.SetEnvPrefix("ZEXIO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A few keys also accept an unprefixed environment variable, read
	// only when the ZEXIO_-prefixed form is unset.
	for key, env := range map[string]string{
		keyRelayURL:         "RELAY_URL",
		keyTunnelTargetPort: "TUNNEL_PORT",
		keyMeshSecret:       "MESH_JWT_SECRET",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return &Config{v: v}, nil
}

// BindFlags registers CLI flags for the given option slice and binds
// them to the underlying viper keys so that flag values override file
// and environment sources.
func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

// IdentityPath returns the path to the persisted node identity file.
func (c *Config) IdentityPath() string {
	return c.v.GetString(keyIdentityPath)
}

// MasterKeyPath returns the path to the master key used to seal the
// node secret at rest. The identity store generates and persists a key
// there on first use if none exists.
func (c *Config) MasterKeyPath() string {
	return c.v.GetString(keyMasterKeyPath)
}

// NodePublicIP returns this node's configured public IP, used by the
// host resolver to recognize Service Directory entries that point
// back at this same node.
func (c *Config) NodePublicIP() string {
	return c.v.GetString(keyNodePublicIP)
}

// ProvisioningToken returns the one-time token used to bootstrap a new
// node identity. It is only consulted when no identity exists on disk.
func (c *Config) ProvisioningToken() string {
	return c.v.GetString(keyProvisioningToken)
}

// ControlPlaneURL returns the control-plane base URL.
func (c *Config) ControlPlaneURL() string {
	return c.v.GetString(keyControlPlaneURL)
}

// RelayURL returns the configured relay URL override, or the empty
// string if the relay URL stored in the identity file should be used
// instead.
func (c *Config) RelayURL() string {
	return c.v.GetString(keyRelayURL)
}

// TunnelTargetPort returns the local port that inbound tunnel
// sessions are forwarded to.
func (c *Config) TunnelTargetPort() int {
	return c.v.GetInt(keyTunnelTargetPort)
}

// MeshListenAddress returns the mesh proxy's HTTP listen address.
func (c *Config) MeshListenAddress() string {
	return c.v.GetString(keyMeshListenAddress)
}

// MeshAllowedOrigins returns the mesh proxy's allowed CORS origins.
func (c *Config) MeshAllowedOrigins() []string {
	return c.v.GetStringSlice(keyMeshAllowedOrigins)
}

// MeshSecret returns the shared secret used to verify mesh bearer
// token signatures.
func (c *Config) MeshSecret() string {
	return c.v.GetString(keyMeshSecret)
}

// MetricsListenAddress returns the Prometheus /metrics scrape listen
// address.
func (c *Config) MetricsListenAddress() string {
	return c.v.GetString(keyMetricsListenAddress)
}

// WorkloadConfigPath returns the path to the local workload
// configuration file.
func (c *Config) WorkloadConfigPath() string {
	return c.v.GetString(keyWorkloadConfigPath)
}

// ServiceDirectoryPath returns the path to the local Service Directory
// snapshot.
func (c *Config) ServiceDirectoryPath() string {
	return c.v.GetString(keyServiceDirectoryPath)
}

// ServiceDirectoryPollInterval returns how often the Service Directory
// snapshot is reloaded from disk.
func (c *Config) ServiceDirectoryPollInterval() time.Duration {
	return c.v.GetDuration(keyServiceDirectoryPoll)
}

// HeartbeatInterval returns how often the agent sends a control-plane
// heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return c.v.GetDuration(keyHeartbeatInterval)
}
