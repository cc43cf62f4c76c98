package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/0xguardapp/0xguard-engine/internal/judge"
	"github.com/0xguardapp/0xguard-engine/internal/judge/api"
	"github.com/0xguardapp/0xguard-engine/internal/judge/audit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/config"
	"github.com/0xguardapp/0xguard-engine/internal/judge/metrics"
	"github.com/0xguardapp/0xguard-engine/internal/judge/payout"
	"github.com/0xguardapp/0xguard-engine/internal/judge/ratelimit"
	"github.com/0xguardapp/0xguard-engine/internal/judge/transport"
	"github.com/0xguardapp/0xguard-engine/internal/judge/verifier"
	"github.com/0xguardapp/0xguard-engine/pkg/client/midnight"
	"github.com/0xguardapp/0xguard-engine/pkg/client/paymaster"
	"github.com/0xguardapp/0xguard-engine/pkg/client/redissink"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/registry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:   "judge",
		Usage:  "verification and payout engine for the 0xGuard security simulation",
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "judge failed: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	config.Init()

	logConfig := logging.NewDefaultConfig(logging.JudgeProcess)
	if !config.DevMode {
		logConfig.Environment = logging.Production
	}
	if err := logging.InitServiceLogger(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.GetServiceLogger()
	defer logging.Shutdown()

	logger.Infof("Starting judge engine (dev=%v)", config.DevMode)

	rules, rates, err := config.LoadRules(config.RulesFile)
	if err != nil {
		return fmt.Errorf("failed to load verification rules: %w", err)
	}

	v := verifier.New(logger, config.TargetSecret, rules, rates)
	limiter := ratelimit.NewLimiter(logger, ratelimit.Config{
		MaxPerHour: config.MaxBountiesPerHour,
		Cooldown:   time.Duration(config.CooldownSeconds) * time.Second,
	})
	budget := payout.NewBudget(logger, config.DailyBountyCap)

	payments := paymaster.NewClient(logger, paymaster.Config{
		BaseURL: config.PaymasterURL,
		Timeout: config.PaymasterTimeout,
	})
	dispatcher := payout.NewDispatcher(logger, limiter, budget, payments)

	var sink audit.Sink
	if config.RedisURL != "" {
		redisSink, err := redissink.NewSink(logger, redissink.Config{
			URL:      config.RedisURL,
			Password: config.RedisPassword,
		})
		if err != nil {
			logger.Warnf("Redis audit sink unavailable, keeping events in memory only: %v", err)
		} else {
			sink = redisSink
			defer func() {
				_ = redisSink.Close()
			}()
		}
	}
	trail := audit.NewTrail(logger, sink)

	proofs := midnight.NewClient(logger, midnight.Config{
		APIURL:          config.MidnightAPIURL,
		ContractAddress: config.MidnightContractAddress,
		SimulationMode:  config.SimulationMode,
	})

	var reputations judge.ReputationRegistry
	if config.RegistryRPCURL != "" {
		reg, err := registry.NewRegistry(logger, registry.Config{
			RPCURL:          config.RegistryRPCURL,
			ContractAddress: config.RegistryContractAddress,
			PrivateKey:      config.RegistryPrivateKey,
			ChainID:         config.RegistryChainID,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to reputation registry: %w", err)
		}
		reputations = reg
	}

	engine := judge.NewEngine(logger, judge.Config{
		AuditorAddress: config.AuditorAddress,
		RiskThreshold:  config.RiskThreshold,
	}, v, limiter, budget, dispatcher, trail, proofs, reputations, nil)

	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	metrics.StartCollection()

	bus := transport.NewLocalBus()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		transport.Pump(context.Background(), logger, bus, engine)
	}()

	server := api.NewServer(api.Config{Port: config.APIPort}, logger, engine, bus)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infof("Received signal: %v, shutting down...", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warnf("API server shutdown error: %v", err)
	}

	// Server is down, so no more publishes. Drain what is already queued.
	_ = bus.Close()
	<-pumpDone

	engine.Stop()
	trail.Drain()

	logger.Infof("Judge engine shut down")
	return nil
}
