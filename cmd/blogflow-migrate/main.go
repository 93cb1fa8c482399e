// cmd/blogflow-migrate/main.go
package main

import (
	"fmt"
	"os"

	"github.com/ignatij/blogflow/internal/config"
	internal_storage "github.com/ignatij/blogflow/internal/storage"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "blogflow-migrate"}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		// Reads .env and the BLOGFLOW_* / DB_* env vars
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}

		driver, _ := cmd.Flags().GetString("driver")
		target := cfg.DBConnStr
		if driver == internal_storage.DriverSQLite {
			target = cfg.SQLitePath
		}
		if cmd.Flags().Changed("db") {
			target, _ = cmd.Flags().GetString("db")
		}
		if target == "" {
			fmt.Println("Error: --db flag, BLOGFLOW_DB or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
			os.Exit(1)
		}

		if err := internal_storage.Migrate(driver, target); err != nil {
			fmt.Printf("Failed to apply migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	},
}

func main() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("db", "", "Connection string, or database file for sqlite (optional if env vars are set)")
	migrateCmd.Flags().String("driver", internal_storage.DriverPostgres, "Database driver: postgres or sqlite")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
