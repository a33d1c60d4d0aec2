package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "wpbatch",
	Short:         "Generate blog posts from topic lines and publish them to WordPress",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	_, envNoColor := os.LookupEnv("NO_COLOR")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", envNoColor, "disable colored output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("wpbatch version %s\n", version))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
