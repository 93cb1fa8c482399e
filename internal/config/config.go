package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultRegion   = "us-east-1"
	DefaultModelID  = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	DefaultProvider = "bedrock"
	DefaultPort     = "8080"

	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Region     string
	ModelID    string
	Provider   string
	Store      string
	DBConnStr  string
	SQLitePath string
	Workers    int
	Port       string
}

// Load reads .env (if present) and the environment, applying defaults.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	c := &Config{
		Region:     getEnv("AWS_REGION", DefaultRegion),
		ModelID:    getEnv("BLOGFLOW_MODEL_ID", DefaultModelID),
		Provider:   getEnv("BLOGFLOW_PROVIDER", DefaultProvider),
		DBConnStr:  getEnv("BLOGFLOW_DB", postgresFromEnv()),
		SQLitePath: getEnv("BLOGFLOW_SQLITE_PATH", defaultSQLitePath()),
		Port:       getEnv("PORT", DefaultPort),
	}
	c.Store = getEnv("BLOGFLOW_STORE", defaultStore(c.DBConnStr))

	workers, err := strconv.Atoi(getEnv("BLOGFLOW_WORKERS", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid BLOGFLOW_WORKERS: %w", err)
	}
	c.Workers = workers

	switch c.Store {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return nil, fmt.Errorf("invalid BLOGFLOW_STORE %q: must be memory, sqlite or postgres", c.Store)
	}
	return c, nil
}

// postgresFromEnv builds a connection string from DB_* variables, or returns
// "" when any of them is missing.
func postgresFromEnv() string {
	dbUsername := os.Getenv("DB_USERNAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, dbHost, dbPort, dbName)
}

func defaultStore(dbConnStr string) string {
	if dbConnStr != "" {
		return StorePostgres
	}
	return StoreMemory
}

func defaultSQLitePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "blogflow.db"
	}
	return filepath.Join(homeDir, ".blogflow", "blogflow.db")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
