// Package cmd defines the agent's single Cobra command and assembles
// its Runtime.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zexio-io/zexio-agent/internal/config"
)

// NewAgentCommand builds the root Cobra command around an
// already-assembled Runtime. Runtime reads every configuration value
// lazily (via conf's viper-backed accessors) at Run time, so it is
// safe to construct before Cobra parses flags: BindFlags wires the
// flag set into the same viper keys Runtime will read from.
func NewAgentCommand(conf *config.Config, rt *Runtime) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:     "zexio-agent",
		Short:   "Edge agent: reverse tunnel, mesh proxy, and node stats for a Zexio node",
		Example: "zexio-agent --control-plane-url=https://control.zexio.io --mesh-listen-address=:8443",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.Run(cmd.Context())
		},
	}

	if err := conf.BindFlags(c.Flags(), config.AgentOptions); err != nil {
		return nil, err
	}

	return c, nil
}
