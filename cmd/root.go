// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var cfgFile string
var storeDSN string
var queueDSN string
var rosterPath string
var debugMode bool
var noColor bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crewclock",
	Short: "Crewclock tracks crew time and labor cost",
	Long: `Clock crews in and out of job sites, enforce GPS and break policy,
queue actions while offline and report labor cost by member, job and crew.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		if debugMode {
			Debug("command: %s", commandLine(cmd, args))
		}
	},
}

// commandLine reconstructs the invoked command with the flags that were set.
func commandLine(cmd *cobra.Command, args []string) string {
	full := cmd.CommandPath()
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "debug" {
			return
		}
		if f.Value.Type() == "bool" {
			full += " --" + f.Name
		} else {
			full += " --" + f.Name + "=" + f.Value.String()
		}
	})
	if len(args) > 0 {
		full += " " + strings.Join(args, " ")
	}
	return full
}

// Debug prints a message if debug mode is enabled
func Debug(format string, args ...interface{}) {
	if debugMode {
		fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", fmt.Sprintf(format, args...))
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.crewclock.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "store", "", "authoritative store DSN (sqlite:, redis://, postgres://, memory:)")
	rootCmd.PersistentFlags().StringVar(&queueDSN, "queue-store", "", "local offline queue store DSN")
	rootCmd.PersistentFlags().StringVar(&rosterPath, "roster", "", "roster YAML with members, crews and jobs")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
}
