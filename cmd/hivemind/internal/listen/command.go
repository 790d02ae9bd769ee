package listen

import (
	"github.com/spf13/cobra"
)

func NewListenCommand() *cobra.Command {
	var debug bool
	var announce bool

	cmd := &cobra.Command{
		Use:     "listen",
		Aliases: []string{"l"},
		Short:   "Start the hivemind hub",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listenCmd(debug, cmd.Flags().Changed("announce"), announce)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&announce, "announce", true, "Announce the hub over mDNS")

	return cmd
}
