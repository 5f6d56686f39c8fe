package config

import (
	"strings"
	"time"
)

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// AgentOptions defines every configuration entry the agent binary
// accepts. Each entry is registered as a viper default and a CLI
// flag.
var AgentOptions = []Option{
	{Key: keyIdentityPath, Flag: toFlag(keyIdentityPath), Default: "/etc/zexio/identity.yaml", Description: "Path to the persisted node identity file"},
	{Key: keyMasterKeyPath, Flag: toFlag(keyMasterKeyPath), Default: "/etc/zexio/master.key", Description: "Path to the master key used to seal the node secret at rest; generated on first use if absent"},
	{Key: keyProvisioningToken, Flag: toFlag(keyProvisioningToken), Default: "", Description: "One-time provisioning token used to bootstrap a new node identity"},
	{Key: keyControlPlaneURL, Flag: toFlag(keyControlPlaneURL), Default: "https://control.zexio.io", Description: "Control-plane base URL for registration and heartbeats"},
	{Key: keyRelayURL, Flag: toFlag(keyRelayURL), Default: "", Description: "Relay WebSocket URL; overrides the relay_url stored in the identity file when set"},
	{Key: keyTunnelTargetPort, Flag: toFlag(keyTunnelTargetPort), Default: 8080, Description: "Local TCP port the tunnel multiplexer forwards inbound sessions to"},
	{Key: keyNodePublicIP, Flag: toFlag(keyNodePublicIP), Default: "", Description: "This node's public IP, used to collapse Service Directory entries that point back at this node to loopback"},
	{Key: keyMeshListenAddress, Flag: toFlag(keyMeshListenAddress), Default: ":8443", Description: "Mesh proxy listen address"},
	{Key: keyMeshAllowedOrigins, Flag: toFlag(keyMeshAllowedOrigins), Default: []string{}, Description: "Mesh proxy allowed CORS origins"},
	{Key: keyMeshSecret, Flag: toFlag(keyMeshSecret), Default: "change-me", Description: "Shared secret used to verify mesh bearer token signatures"},
	{Key: keyMetricsListenAddress, Flag: toFlag(keyMetricsListenAddress), Default: ":9090", Description: "Prometheus /metrics scrape listen address"},
	{Key: keyWorkloadConfigPath, Flag: toFlag(keyWorkloadConfigPath), Default: "/etc/zexio/workloads.json", Description: "Path to the local workload configuration file"},
	{Key: keyServiceDirectoryPath, Flag: toFlag(keyServiceDirectoryPath), Default: "/etc/zexio/service_directory.json", Description: "Path to the local Service Directory snapshot"},
	{Key: keyServiceDirectoryPoll, Flag: toFlag(keyServiceDirectoryPoll), Default: 30 * time.Second, Description: "Service Directory snapshot refresh interval"},
	{Key: keyHeartbeatInterval, Flag: toFlag(keyHeartbeatInterval), Default: 30 * time.Second, Description: "Control-plane heartbeat interval"},
}

// toFlag converts a viper key like "agent.mesh.listen_address" into a
// CLI flag like "mesh-listen-address" by lower-casing, replacing dots
// and underscores with hyphens, and stripping the "agent-" prefix.
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "agent-")
	return flag
}
