package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wpfleet-ctl",
	Short: "Command line interface for wpfleet",
	Long:  `CLI for managing WordPress sites through the wpfleet server (status, plugins, themes, installs).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "http://localhost:8080", "wpfleet server URL")

	// Bind flags to viper
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}

// initConfig reads in ENV variables if set. WPFLEET_URL overrides the default URL.
func initConfig() {
	viper.SetEnvPrefix("WPFLEET")
	viper.AutomaticEnv()
}
