package commands

import (
	"fmt"

	"github.com/olachain/ola/src/net"
	"github.com/olachain/ola/src/version"
	"github.com/spf13/cobra"
)

// VersionCmd displays the version of ola being used
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s (protocol %s)\n", version.Version, net.ProtocolVersion)
	},
}
