// HiveMind speech master - hub node for a mesh of voice satellites
// License: MIT
//
// Copyright (c) 2026 HiveMind contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal"
	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal/clients"
	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal/console"
	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal/listen"
	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal/version"
)

func NewHivemindCommand() *cobra.Command {
	short := fmt.Sprintf("%s hivemind - speech master hub v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "hivemind",
		Short:   short,
		Example: "hivemind listen",
	}

	cmd.AddCommand(
		listen.NewListenCommand(),
		clients.NewClientsCommand(),
		console.NewConsoleCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewHivemindCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
