// Command server runs the drawer box backend: the kiosk JSON API, the
// card-reader bridge and the drawer sequencer.
package main

import (
	"context"
	"log"
	"os"

	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
