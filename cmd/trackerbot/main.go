package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetfit/trackerbot/botservice"
)

var rootCmd = &cobra.Command{
	Use:   "trackerbot",
	Short: "Chat bot that logs health and nutrition data to spreadsheets",
}

func main() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return botservice.Run()
		},
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
