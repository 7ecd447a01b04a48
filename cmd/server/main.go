package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/sitekeeper/internal/server"
	"github.com/dmitrijs2005/sitekeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
