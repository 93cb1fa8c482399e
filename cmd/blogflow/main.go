package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignatij/blogflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "blogflow",
	Short: "Run model-backed task workflows",
	Long:  "blogflow runs DAGs of model-backed tasks, including a plan, write and edit blog pipeline.",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetupCLI(rootCmd)
	cli.Execute(ctx, rootCmd)
}
