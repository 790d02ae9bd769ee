package console

import (
	"github.com/spf13/cobra"
)

func NewConsoleCommand() *cobra.Command {
	var host string
	var port int
	var name string
	var key string
	var cryptoKey string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive terminal client for a running hub",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(host, port, name, key, cryptoKey)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Hub host")
	cmd.Flags().IntVar(&port, "port", 6799, "Hub port")
	cmd.Flags().StringVar(&name, "name", "console", "Client name")
	cmd.Flags().StringVar(&key, "key", "", "Access key (required)")
	cmd.Flags().StringVar(&cryptoKey, "crypto-key", "", "Crypto key for an encrypted channel")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
