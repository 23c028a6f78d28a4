package cli

import (
	"github.com/spf13/cobra"
)

var (
	// jsonOutput is a persistent flag available to all subcommands
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "snsd",
	Short: "snsd is an HTTP endpoint for Amazon SNS subscriptions",
	Long: `snsd receives Amazon SNS HTTP(S) deliveries, confirms topic subscriptions by
visiting their SubscribeURL and keeps a small log of recent requests and
responses. Any request to the server answers with that log as JSON.

Configuration can be provided via flags, environment variables (PORT, SNSD_*),
or a YAML configuration file.`,
	SilenceUsage:  true,
	SilenceErrors: true, // main prints the error
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")

	initServeCmd()
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command line. With no arguments, or with flags only,
// the serve command runs. Serve flags are only accepted when serve is implied
// or named: "snsd -p 8080 logs" fails at the root with an unknown flag.
func Execute(args []string) error {
	rootCmd.SetArgs(defaultToServe(args))
	return rootCmd.Execute()
}

// defaultToServe prepends "serve" unless args name a subcommand or ask for help.
func defaultToServe(args []string) []string {
	for _, a := range args {
		switch a {
		case "-h", "--help", "help", "completion":
			return args
		}
		for _, c := range rootCmd.Commands() {
			if c.Name() == a || c.HasAlias(a) {
				return args
			}
		}
	}
	return append([]string{"serve"}, args...)
}
