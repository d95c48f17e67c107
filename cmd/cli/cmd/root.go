package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "actionctl",
	Short: "actionctl is a command line tool for interacting with the actionplane queue",
	Long: `actionctl is the command-line interface for the actionplane action queue.

actionplane schedules SEO actions as prioritized, dependency-aware jobs and runs
ordered playbooks of actions on behalf of an owning agent. Every command acts for
one owner, sent as the X-Owner-ID header.

Common workflows:

  Enqueue a job:
    actionctl enqueue --type publish_post --payload '{"slug":"pricing"}' --priority 80

  Enqueue with ICE scoring and a dependency:
    actionctl enqueue --type fix_meta --impact 8 --confidence 6 --ease 5 --depends-on <job-id>

  Check a job:
    actionctl status <job-id>

  Queue counters:
    actionctl stats

  Run a playbook and follow its progress:
    actionctl playbook run <playbook-id>
    actionctl playbook status <playbook-id>

Configuration:
  Set the API endpoint and owner via flags, environment variables or a config file:
    ACTIONPLANE_URL      API endpoint (default: http://localhost:6161)
    ACTIONPLANE_OWNER    Owner (agent) id every request acts for`,
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

		// Search config in home directory with name ".actionctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".actionctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "ACTIONPLANE_VARNAME"
	viper.SetEnvPrefix("ACTIONPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds an API client from the resolved url and owner.
func newClient() (*ActionClient, error) {
	owner := viper.GetString("owner")
	if owner == "" {
		return nil, fmt.Errorf("owner not set: use the --owner flag or the ACTIONPLANE_OWNER environment variable")
	}
	return NewActionClient(viper.GetString("url"), owner), nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.actionctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "actionplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("owner", "o", "", "Owner (agent) id to act for")
	viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
}
