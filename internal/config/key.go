// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix ZEXIO_)
//  3. Config file (config.yaml in . or /etc/zexio/)
//  4. Compiled defaults
package config

// Viper keys for agent configuration.
const (
	keyIdentityPath          = "agent.identity_path"
	keyMasterKeyPath         = "agent.master_key_path"
	keyProvisioningToken     = "agent.provisioning_token"
	keyControlPlaneURL       = "agent.control_plane_url"
	keyRelayURL              = "agent.relay_url"
	keyTunnelTargetPort      = "agent.tunnel_target_port"
	keyNodePublicIP          = "agent.node_public_ip"
	keyMeshListenAddress     = "agent.mesh.listen_address"
	keyMeshAllowedOrigins    = "agent.mesh.allowed_origins"
	keyMeshSecret            = "agent.mesh.secret"
	keyMetricsListenAddress  = "agent.metrics.listen_address"
	keyWorkloadConfigPath    = "agent.workload_config_path"
	keyServiceDirectoryPath  = "agent.service_directory_path"
	keyServiceDirectoryPoll  = "agent.service_directory_poll_interval"
	keyHeartbeatInterval     = "agent.heartbeat_interval"
)
