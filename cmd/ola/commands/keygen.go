package commands

import (
	"fmt"
	"path/filepath"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/config"
	"github.com/olachain/ola/src/ola"
	"github.com/spf13/cobra"
)

var (
	privKeyFile string
)

// NewKeygenCmd produces a KeygenCmd which creates a validator key
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new private key",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

// AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", _config.Keyfile(), "File where the private key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := ola.Keygen(privKeyFile)
	if err != nil {
		return err
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)
	fmt.Printf("Address: %s\n", chain.AddressFromPublicKey(&key.PublicKey))

	if filepath.Base(privKeyFile) != config.DefaultKeyfile {
		fmt.Printf("Rename it to %s in the data directory to use it with ola run\n", config.DefaultKeyfile)
	}

	return nil
}
