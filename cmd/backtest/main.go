package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	"FinSim/internal/repository"
	"FinSim/internal/service/ratelimit"
	"FinSim/internal/services/engine"
	"FinSim/internal/services/provider"
	"FinSim/internal/usecase"
	"FinSim/pkg/cache"
	"FinSim/pkg/config"
	"FinSim/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "backtest",
		Usage: "run ORB/FVG simulations from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "optional config file; built-in defaults otherwise",
				EnvVars: []string{"FINSIM_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "simulate a date range and print the result as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Value: "QQQ"},
					&cli.StringFlag{Name: "from", Usage: "first session, YYYY-MM-DD", Required: true},
					&cli.StringFlag{Name: "to", Usage: "last session, YYYY-MM-DD", Required: true},
					&cli.Float64Flag{Name: "account", Usage: "initial equity"},
					&cli.StringFlag{Name: "strategy"},
					&cli.IntFlag{Name: "iterations", Usage: "bootstrap iterations"},
					&cli.StringFlag{Name: "m1-csv", Usage: "1-minute bars csv"},
					&cli.StringFlag{Name: "m5-csv", Usage: "5-minute bars csv"},
					&cli.BoolFlag{Name: "trades", Usage: "include the trade list in the output"},
				},
				Action: runBacktest,
			},
			{
				Name:  "strategies",
				Usage: "list registered strategies",
				Action: func(c *cli.Context) error {
					fmt.Println(strings.Join(engine.NewFactory().Available(), "\n"))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadWithEnv(path)
}

func runBacktest(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	lg, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	symbol := strings.ToUpper(c.String("symbol"))
	store := repository.NewMemoryBarStore()
	for _, src := range []struct {
		flag string
		tf   domrepo.Timeframe
	}{{"m1-csv", domrepo.TF1m}, {"m5-csv", domrepo.TF5m}} {
		path := c.String(src.flag)
		if path == "" {
			continue
		}
		bars, skipped, err := readBarsFile(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("%s: %v", src.flag, err), 1)
		}
		if skipped > 0 {
			lg.Warn("csv rows skipped", logger.String("file", path), logger.Int("skipped", skipped))
		}
		if _, err := store.Save(c.Context, symbol, src.tf, bars, "csv"); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	var bp domrepo.BarProvider
	if cfg.Provider.APIKey != "" {
		bp = provider.NewPolygon(provider.PolygonConfig{
			BaseURL:           cfg.Provider.BaseURL,
			APIKey:            cfg.Provider.APIKey,
			Timeout:           cfg.Provider.Timeout,
			RequestsPerMinute: cfg.Provider.RequestsPerMinute,
		}, ratelimit.New(), nil, lg)
	}

	results := cache.NewMemoryCache()
	defer results.Close()

	sims := usecase.NewSimulationService(
		engine.NewFactory(),
		usecase.NewBarLoader(store, bp, nil, lg),
		repository.NewCacheResultStore(results, cfg.Simulation.ResultTTL),
		usecase.SimulationConfig{
			DefaultStrategy:  cfg.Simulation.DefaultStrategy,
			Strategy:         cfg.Simulation.Strategy,
			BootstrapSeed:    cfg.Simulation.BootstrapSeed,
			BootstrapWorkers: cfg.Simulation.BootstrapWorkers,
		},
		usecase.WithSimulationLogger(lg),
	)

	req := models.RunSimulationRequest{}
	if err := defaults.Set(&req); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	req.Symbol = symbol
	req.StartDate = c.String("from")
	req.EndDate = c.String("to")
	req.AccountSize = cfg.Simulation.DefaultAccountSize
	req.PipValue = cfg.Simulation.DefaultPipValue
	req.Strategy = cfg.Simulation.DefaultStrategy
	req.BootstrapIterations = cfg.Simulation.BootstrapIterations
	if c.IsSet("account") {
		req.AccountSize = c.Float64("account")
	}
	if c.IsSet("strategy") {
		req.Strategy = c.String("strategy")
	}
	if c.IsSet("iterations") {
		req.BootstrapIterations = c.Int("iterations")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := sims.RunSimulation(ctx, &req)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if !c.Bool("trades") {
		res.Trades = nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
