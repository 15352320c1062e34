// Package hmlrcmder builds the root "hmlr" cobra command.
package hmlrcmder

import (
	"github.com/spf13/cobra"

	searchcmder "github.com/bridgeware/hmlr/cmd/hmlr/search"
	servecmder "github.com/bridgeware/hmlr/cmd/hmlr/serve"
	versioncmder "github.com/bridgeware/hmlr/cmd/version"
)

const hmlrLongDesc string = `HMLR is a hierarchical memory lookup and routing engine for
long-running chat agents.

Run the engine using:
  hmlr serve            Run the API server over a configured storage and model stack
  hmlr search <query>   Search stored memories via a running API server`

const hmlrShortDesc string = "HMLR - Hierarchical Memory Lookup & Routing"

func NewHMLRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hmlr",
		Short: hmlrShortDesc,
		Long:  hmlrLongDesc,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .hmlr config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
