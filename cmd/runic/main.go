// runic is a plugin-based launcher: it collects a query, fans it out to
// the plugins hosted by runic-provider, and dispatches the selected match
// back to its plugin.
package main

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/runic-sh/runic/lib/config"
	"github.com/runic-sh/runic/lib/host"
)

var (
	configDirFlag string
	pluginsFlag   []string
	providerFlag  string
)

func main() {
	root := &cobra.Command{
		Use:           "runic",
		Short:         "A plugin-based application launcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.Flags().StringVar(&configDirFlag, "config-dir", "", "override the config directory")
	root.Flags().StringArrayVarP(&pluginsFlag, "plugin", "p", nil, "override the configured plugin list")
	root.Flags().StringVar(&providerFlag, "provider", "", "override the provider executable")

	if err := root.Execute(); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Error().Err(err).Msg("runic failed")
		os.Exit(1)
	}
}

func run() error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("proc", "host").Logger()

	dir := config.Dir(configDirFlag)
	cfg, err := config.Load(dir)
	if err != nil {
		log.Warn().Err(err).Msg("config")
	}
	if len(pluginsFlag) > 0 {
		cfg.Plugins = pluginsFlag
	}
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}

	stdin := capturedStdin(os.Stdin)
	orch, err := host.Start(host.Options{
		Config:    cfg,
		ConfigDir: dir,
		Stdin:     stdin,
		Log:       log,
	})
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	model := newModel(orch, cfg)
	program := tea.NewProgram(model, inputOption(stdin), tea.WithOutput(os.Stderr))
	_, err = program.Run()
	return err
}

// capturedStdin reads piped standard input so the provider can replay it
// for plugins that depend on invocation context. An interactive terminal
// is left alone, it belongs to the front end.
func capturedStdin(stdin *os.File) []byte {
	stat, err := stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil
	}
	return data
}

// inputOption picks where key events come from. When stdin was drained for
// the provider it is exhausted, so the front end must read the terminal
// directly.
func inputOption(captured []byte) tea.ProgramOption {
	if len(captured) > 0 {
		return tea.WithInputTTY()
	}
	return tea.WithInput(os.Stdin)
}
