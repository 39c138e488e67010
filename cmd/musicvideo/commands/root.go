package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "musicvideo",
	Short: "Music video generator - RunwayML image-to-video orchestration",
	Long: `Turns a scene image and a track analysis into a short video clip.
Runs are validated, submitted to RunwayML, polled to completion and the
result is downloaded into the results directory.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/generations.db", "SQLite ledger path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM state directory")
	rootCmd.PersistentFlags().String("results-dir", "public/results", "Directory for downloaded results")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for mirrored videos (empty disables the mirror)")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "Custom S3 endpoint (path-style)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("results-dir", rootCmd.PersistentFlags().Lookup("results-dir"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("s3-endpoint", rootCmd.PersistentFlags().Lookup("s3-endpoint"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
