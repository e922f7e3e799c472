// runic-provider hosts the configured plugins in their own process and
// answers the launcher's requests over a Unix domain socket.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/runic-sh/runic/lib/ipc"
	"github.com/runic-sh/runic/lib/provider"
)

var (
	configDir string
	plugins   []string
)

func main() {
	root := &cobra.Command{
		Use:           "runic-provider",
		Short:         "Plugin host process for the runic launcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory handed to plugins")
	root.PersistentFlags().StringArrayVarP(&plugins, "plugin", "p", nil, "plugin reference to load, repeatable")

	root.AddCommand(&cobra.Command{
		Use:   "connect-to <socket>",
		Short: "Serve one launcher session on the given socket path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(args[0])
		},
	})

	if err := root.Execute(); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Error().Err(err).Msg("provider failed")
		os.Exit(1)
	}
}

func serve(socketPath string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("proc", "provider").Logger()

	// Listen before loading so the host's dial succeeds while slow
	// plugins initialize.
	listener, err := ipc.Listen(socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	loaded := provider.LoadAll(configDir, plugins, log)
	log.Info().Int("loaded", len(loaded)).Int("configured", len(plugins)).Msg("plugins loaded")

	socket, err := ipc.Accept(listener)
	if err != nil {
		return err
	}
	defer socket.Close()

	return provider.New(socket, loaded, log).Run(context.Background())
}
