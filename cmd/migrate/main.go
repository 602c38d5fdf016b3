package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Inventorum/ebay-sub000/internal/cli"
)

func main() {
	if err := cli.NewMigrateCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
