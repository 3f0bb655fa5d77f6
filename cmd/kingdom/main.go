package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "kingdom",
	Short: "Devotionals, prayer, biblical wisdom and sacred art, powered by Gemini",
	Long: `kingdom runs a local server that turns Gemini into a devotional
companion: daily devotionals, prayer responses, grounded answers to biblical
questions, places of scripture on the map, sacred art, narration and video.

Start the server with ` + "`kingdom start`" + `, then use the other commands to talk to it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format for content commands: text, json or yaml")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(languagesCmd, devotionalCmd, prayCmd, askCmd, mapCmd)
	rootCmd.AddCommand(imageCmd, videoCmd, speakCmd, analyzeCmd, contactCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// versionString is reported to MCP clients and printed on start.
func versionString() string {
	return fmt.Sprintf("kingdom version %s", version)
}
