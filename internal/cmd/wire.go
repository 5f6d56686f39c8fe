package cmd

import (
	"github.com/google/wire"

	"github.com/zexio-io/zexio-agent/internal/config"
	"github.com/zexio-io/zexio-agent/internal/controlplane"
	"github.com/zexio-io/zexio-agent/internal/core"
	"github.com/zexio-io/zexio-agent/internal/cryptoutil"
	"github.com/zexio-io/zexio-agent/internal/hostresolver"
	"github.com/zexio-io/zexio-agent/internal/identity"
	"github.com/zexio-io/zexio-agent/internal/telemetry"
	"github.com/zexio-io/zexio-agent/internal/workload"
)

// ProviderSet is the Wire provider set for the CLI layer: the
// config-derived component constructors, the Runtime, and the root
// Cobra command.
var ProviderSet = wire.NewSet(
	provideIdentityStore,
	provideControlPlaneClient,
	provideWorkloadStore,
	provideServiceDirectory,
	wire.Bind(new(hostresolver.Directory), new(*hostresolver.InMemoryDirectory)),
	provideResolver,
	NewRuntime,
	NewAgentCommand,
	core.ProviderSet,
	cryptoutil.ProviderSet,
	telemetry.ProviderSet,
)

// provideIdentityStore constructs the identity store at the path
// named in conf, rather than exposing a bare string to Wire (which
// would be ambiguous against the other path-shaped config values
// below).
func provideIdentityStore(conf *config.Config) (*identity.Store, error) {
	return identity.NewStore(conf.IdentityPath(), conf.MasterKeyPath())
}

// provideResolver constructs the host resolver from the in-memory
// Service Directory and the node's configured public IP, rather than
// exposing a bare publicIP string to Wire (which would be ambiguous
// against other config-derived strings).
func provideResolver(directory *hostresolver.InMemoryDirectory, conf *config.Config) *hostresolver.Resolver {
	return hostresolver.NewResolver(directory, conf.NodePublicIP())
}

func provideControlPlaneClient(conf *config.Config) *controlplane.Client {
	return controlplane.NewClient(conf.ControlPlaneURL())
}

func provideWorkloadStore(conf *config.Config) (*workload.Store, error) {
	return workload.NewStore(conf.WorkloadConfigPath())
}

func provideServiceDirectory(conf *config.Config) *hostresolver.InMemoryDirectory {
	return hostresolver.NewInMemoryDirectory(conf.ServiceDirectoryPath(), conf.ServiceDirectoryPollInterval())
}
