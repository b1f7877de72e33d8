/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "knowledge-be",
	Short: "Company knowledge base with retrieval augmented answers",
	Long: `knowledge-be ingests company documents (pdf, docx, markdown and text),
stores their chunks as embeddings in a vector store and answers questions
using the closest chunks as context.

Run "knowledge-be serve" for the http api or use the ingest, ask, stats,
clear and summarize commands directly.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config/config.yaml when present)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level from the config")
	rootCmd.PersistentFlags().String("log-format", "", "override log.format from the config (json or console)")
}

// initConfig picks the config file. Values are read by config.LoadConfig.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		return
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		viper.SetConfigFile("config/config.yaml")
	}
}
