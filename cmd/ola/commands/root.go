package commands

import (
	"github.com/olachain/ola/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

// RootCmd is the root command for Ola
var RootCmd = &cobra.Command{
	Use:              "ola",
	Short:            "OlaChain node",
	TraverseChildren: true,
}
