package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	output    string
	serverURL string
	cfgPath   string
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Gatehouse authorization engine CLI",
}

func Execute() error { return rootCmd.Execute() }

func init() {
	home, _ := os.UserHomeDir()
	defaultCfg := filepath.Join(home, ".gatehouse", "config.yaml")

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json|table")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "http://localhost:8089", "authorization server base URL")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "config file path")

	rootCmd.AddCommand(cmdRun(), cmdEval(), cmdPolicy(), cmdKeys(), cmdVersion())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Println("Use -h for help, for example: gatehouse eval -f samples/requests/basic.json")
	}
}
