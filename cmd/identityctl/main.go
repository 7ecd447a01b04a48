package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/sitekeeper/internal/admincli"
)

func main() {
	cmd := admincli.NewRootCmd(admincli.OpenDatabase)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
