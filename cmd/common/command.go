package common

import (
	"github.com/spf13/cobra"
)

// FromCommand builds dependencies from the persistent --config flag.
func FromCommand(cmd *cobra.Command) (*Deps, error) {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		cfgFile = ""
	}

	return Load(cfgFile)
}
