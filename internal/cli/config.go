package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-lipsync/internal/config"
)

// ConfigCmd creates the config command with show and path subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the effective configuration.

Values are resolved in order: command-line flags, LIPSYNC_* environment
variables (a .env file in the working directory is loaded first), the config
file, then built-in defaults.`,
	}

	cmd.AddCommand(configShowCmd(env))
	cmd.AddCommand(configPathCmd(env))

	return cmd
}

func configShowCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Example: `  lipsync config show
  LIPSYNC_WINDOW=20s lipsync config show
  lipsync config show > ~/.config/go-lipsync/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, env)
		},
	}
	addPipelineFlags(cmd.Flags())
	cmd.Flags().String(config.KeyListen, config.Defaults().Listen, "Listen address")
	return cmd
}

func configPathCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the default config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPath(env)
		},
	}
}

// runConfigShow prints the effective configuration.
func runConfigShow(cmd *cobra.Command, env *Env) error {
	cfg, err := env.ConfigLoader.Load(cmd.Flags())
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("cannot render config: %w", err)
	}
	_, err = env.Stdout.Write(out)
	return err
}

// runConfigPath prints the default config file path.
func runConfigPath(env *Env) error {
	p, err := config.Path()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(env.Stdout, p)
	return err
}
