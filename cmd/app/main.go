package main

import (
	"log"
	"os"

	"FinSim/internal/di"
	"FinSim/pkg/config"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "finsim",
		Usage: "intraday ORB/FVG simulation service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "config file path",
				EnvVars: []string{"FINSIM_CONFIG"},
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.LoadWithEnv(c.String("config"))
	if err != nil {
		return cli.Exit("config load failed: "+err.Error(), 1)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return cli.Exit("app initialization failed: "+err.Error(), 1)
	}

	// blocks until SIGINT/SIGTERM
	return app.Run()
}
