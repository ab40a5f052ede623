package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with
// -ldflags "-X dicom-deidentify/internal/cli.Version=v1.2.3".
var Version = "dev"

const envPrefix = "DEID"

// app holds state shared by all commands of one command tree.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand builds the deidentify command tree. Every flag can also be
// set in the YAML file given with --config or through a DEID_ environment
// variable (DEID_LOCK_TIMEOUT for --lock-timeout).
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "deidentify",
		Short: "Pseudonymize DICOM headers with a reversible digit-shift cipher",
		Long: `Remove or pseudonymize identifying DICOM header fields according to a field policy.

Numeric identifiers and dates are shifted digit by digit with the patterns of a
key file, so whoever holds the key file can reverse them with "deidentify reveal".
Every anonymized record is appended to an audit ledger (idLookup.csv) that maps
dummy identifiers back to their source.

KEEP THE KEY FILE AND THE LEDGER SECRET. Anyone holding either can re-identify
patients. Only share the anonymized DICOM files.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(cmd); err != nil {
				return err
			}
			InitLogging(cmd.ErrOrStderr(), "", "", a.verbosity())
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"YAML file with default values for any flag")
	root.PersistentFlags().CountP("verbose", "v",
		"increase console verbosity (-v info, -vv debug)")

	root.AddCommand(
		a.newAnonymizeCommand(),
		a.newRevealCommand(),
		a.newHeaderCommand(),
		a.newLedgerCommand(),
		newVersionCommand(),
	)
	return root
}

// initConfig reads in the config file and ENV variables if set, then binds
// the flags of the command being run.
func (a *app) initConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("could not read config file %s: %w", a.cfgFile, err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", a.v.ConfigFileUsed())
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	return a.v.BindPFlags(cmd.Flags())
}

func (a *app) verbosity() int {
	return a.v.GetInt("verbose")
}

// requireString returns the value of a mandatory flag.
func (a *app) requireString(key string) (string, error) {
	value := a.v.GetString(key)
	if value == "" {
		return "", fmt.Errorf("required flag %q not set", key)
	}
	return value, nil
}

// Execute runs the command tree and exits through ErrExit on failure.
func Execute(ctx context.Context) {
	InitLogging(os.Stderr, "", "", 0)
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		ErrExit("%s", err)
	}
}
