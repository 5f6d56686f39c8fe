//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/spf13/cobra"

	"github.com/zexio-io/zexio-agent/internal/cmd"
	"github.com/zexio-io/zexio-agent/internal/config"
	"github.com/zexio-io/zexio-agent/internal/core"
)

func wireAgent(core.Version) (*cobra.Command, func(), error) {
	panic(wire.Build(
		cmd.ProviderSet,
		config.ProviderSet,
	))
}
