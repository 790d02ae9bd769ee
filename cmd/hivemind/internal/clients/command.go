package clients

import (
	"github.com/spf13/cobra"
)

func NewClientsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clients",
		Aliases: []string{"c"},
		Short:   "Manage authorized satellite devices",
	}

	var crypto bool
	var blacklist []string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Authorize a new device and print its access key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return addCmd(args[0], crypto, blacklist)
		},
	}
	add.Flags().BoolVar(&crypto, "crypto", true, "Issue a crypto key for an encrypted channel")
	add.Flags().StringSliceVar(&blacklist, "blacklist", nil, "Message types this device may not send")

	list := &cobra.Command{
		Use:   "list",
		Short: "List authorized devices",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return listCmd()
		},
	}

	remove := &cobra.Command{
		Use:   "remove <name-or-key>",
		Short: "Revoke a device's access",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return removeCmd(args[0])
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}
