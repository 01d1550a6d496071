package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "runctl",
	Short: "Runctl is a command line tool for supervising processes with runplane",
	Long: `runctl is the command-line interface for the runplane process supervisor.

runplane launches external commands as child processes or inside a pseudo-terminal,
captures their output, enforces an overall deadline and an output-inactivity
deadline, and records why each run ended (natural exit, signal, timeout, cancel).

Common workflows:

  Run a command locally under supervision:
    runctl exec --timeout 30s -- make test

  Start a run on the daemon and wait for its exit report:
    runctl spawn --scope build --wait -- ./build.sh

  Inspect runs:
    runctl list --active
    runctl status <run-id>

  Cancel a run or every run in a scope:
    runctl cancel <run-id>
    runctl cancel --scope build

Configuration:
  Set the daemon endpoint and credentials via environment variables or a config file:
    RUNPLANE_URL      Daemon endpoint (default: http://localhost:6161)
    RUNPLANE_TOKEN    API token for authentication`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".runctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".runctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "RUNPLANE_VARNAME"
	viper.SetEnvPrefix("RUNPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a daemon client from the resolved url and token.
func newClient() *RunClient {
	return NewRunClient(viper.GetString("url"), viper.GetString("token"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.runctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "runplane daemon URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
