package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("ACTIONPLANE")
	viper.AutomaticEnv()
}

// resetFlags restores the defaults of cmd's flags, which outlive a single Execute.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()

	t.Setenv("ACTIONPLANE_OWNER", "agent-env")
	t.Setenv("ACTIONPLANE_URL", "http://custom-url:8080")

	if owner := viper.GetString("owner"); owner != "agent-env" {
		t.Errorf("expected owner from env var, got: %s", owner)
	}
	if url := viper.GetString("url"); url != "http://custom-url:8080" {
		t.Errorf("expected url from env var, got: %s", url)
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	if _, err := execute(t, "--help"); err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range []string{"enqueue", "status", "stats", "cancel", "priority", "playbook"} {
		if !registered[name] {
			t.Errorf("expected %q subcommand to be registered with root command", name)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"unknown-command-xyz"})
	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestNewClient_RequiresOwner(t *testing.T) {
	resetViper()
	t.Setenv("ACTIONPLANE_OWNER", "")

	_, err := execute(t, "stats")
	if err == nil {
		t.Fatal("expected error when owner is missing")
	}
	if !strings.Contains(err.Error(), "owner not set") {
		t.Errorf("unexpected error: %v", err)
	}
}
