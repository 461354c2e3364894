package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/refstack/citethread"
	"github.com/sosodev/duration"
	"github.com/spf13/cobra"
)

func getenv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return value
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Fatal("Error loading .env file")
	}

	// Set configuration for the citethread package
	citethread.Config.GmailAccessToken = getenv("GMAIL_ACCESS_TOKEN")
	citethread.Config.CrossRefMailto = getenv("CROSSREF_MAILTO")
	citethread.Config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	// Lookback window for alert fetching, ISO 8601 (default one week)
	lookback := os.Getenv("ALERT_LOOKBACK")
	if lookback == "" {
		lookback = "P7D"
	}
	parsed, err := duration.Parse(lookback)
	if err != nil {
		log.Fatalf("Invalid ALERT_LOOKBACK value %q: %v", lookback, err)
	}
	citethread.Config.AlertLookback = parsed.ToTimeDuration()

	rootCmd := &cobra.Command{
		Use:   "citethread",
		Short: "Scholar Alert Citation Clustering CLI",
	}

	// Add all commands from the citethread package
	rootCmd.AddCommand(citethread.FetchAlertsCmd)
	rootCmd.AddCommand(citethread.ExtractArticlesCmd)
	rootCmd.AddCommand(citethread.ResolveReferencesCmd)
	rootCmd.AddCommand(citethread.ClusterArticlesCmd)
	rootCmd.AddCommand(citethread.GenerateReportCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch-alerts -> extract-articles -> resolve-references -> cluster-articles -> generate-report",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("Running full pipeline...")
		citethread.FetchAlertsCmd.Run(cmd, args)
		citethread.ExtractArticlesCmd.Run(cmd, args)
		citethread.ResolveReferencesCmd.Run(cmd, args)
		if err := citethread.ClusterArticlesCmd.RunE(cmd, args); err != nil {
			return err
		}
		citethread.GenerateReportCmd.Run(cmd, args)
		log.Println("Pipeline complete.")
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean fetched alerts, clustering output, and reports",
	Run: func(cmd *cobra.Command, args []string) {
		dirs := []string{"alerts", "clusters"}
		for _, dir := range dirs {
			files, err := os.ReadDir(dir)
			if err != nil {
				log.Printf("Failed to read %s: %v", dir, err)
				continue
			}
			for _, file := range files {
				if file.IsDir() {
					continue
				}
				err := os.Remove(filepath.Join(dir, file.Name()))
				if err != nil {
					log.Printf("Failed to remove %s: %v", file.Name(), err)
				}
			}
		}

		for _, file := range []string{"report.md", "report.html"} {
			if err := os.Remove(file); err != nil {
				if !os.IsNotExist(err) {
					log.Printf("Failed to remove %s: %v", file, err)
				}
			}
		}

		log.Println("Cleaned alerts, clusters directories and reports.")
	},
}
