package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facegroup",
	Short: "A face clustering service for photo libraries",
	Long: `Facegroup ingests face detections (embeddings produced by an external
detector service), groups them into identity clusters by cosine similarity,
and lets users label clusters with a person's identity. Labeling merges
clusters owned by the same user and notifies them about new matches.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
