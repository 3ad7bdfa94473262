package main

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/grantmike/EIPs/pkg/codec"
	"github.com/grantmike/EIPs/pkg/config"
	"github.com/grantmike/EIPs/pkg/engine"
	ledgermemory "github.com/grantmike/EIPs/pkg/ledger/memory"
	"github.com/grantmike/EIPs/pkg/logger"
	"github.com/grantmike/EIPs/pkg/registry"
	registrybadger "github.com/grantmike/EIPs/pkg/registry/badger"
	registrymemory "github.com/grantmike/EIPs/pkg/registry/memory"
	registryredis "github.com/grantmike/EIPs/pkg/registry/redis"
	"github.com/grantmike/EIPs/pkg/server"
)

func main() {
	app := &cli.App{
		Name:  "authd",
		Usage: "Authorization-based token transfer server",
		Description: `A relayer-facing server that executes signed transfer authorizations.

An authorizer signs a typed-data record granting a transfer to a recipient
plus a fee to whichever relayer submits it. The server validates the
temporal window, replay state and signature, then settles both transfers
atomically and consumes the nonce exactly once.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvAuthdPort},
			},
			&cli.Uint64Flag{
				Name:     "chain-id",
				Aliases:  []string{"chain"},
				Usage:    "Ethereum chain ID: " + config.GetSupportedChainIDsString(),
				EnvVars:  []string{config.EnvAuthdChainID},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "token-name",
				Usage:   "Token name bound into the domain separator",
				EnvVars: []string{config.EnvAuthdTokenName},
				Value:   "USD Coin",
			},
			&cli.StringFlag{
				Name:    "token-version",
				Usage:   "Token version bound into the domain separator",
				EnvVars: []string{config.EnvAuthdTokenVersion},
				Value:   "2",
			},
			&cli.StringFlag{
				Name:     "token-address",
				Usage:    "Verifying contract address bound into the domain separator",
				EnvVars:  []string{config.EnvAuthdTokenAddress},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "registry-backend",
				Usage:   "Nonce registry backend: " + config.SupportedRegistryBackends(),
				EnvVars: []string{config.EnvAuthdRegistryBackend},
				Value:   config.RegistryBackendMemory.String(),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Data directory for the badger registry backend",
				EnvVars: []string{config.EnvAuthdDataDir},
				Value:   "./data",
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port) for the redis registry backend",
				EnvVars: []string{config.EnvAuthdRedisAddress},
			},
			&cli.Float64Flag{
				Name:  "rate-limit",
				Usage: "Maximum transfer submissions per second (0 disables)",
				Value: 50,
			},
			&cli.StringSliceFlag{
				Name:  "genesis-balance",
				Usage: "Fund an account at startup, formatted as address=balance (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvAuthdVerbose},
			},
		},
		Action: runAuthServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runAuthServer(c *cli.Context) error {
	cfg, err := parseConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Verbose})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	reg, err := buildRegistry(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to build registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	lgr := ledgermemory.NewMemoryLedger()
	for _, gb := range cfg.GenesisBalances {
		balance, _ := new(big.Int).SetString(gb.Balance, 10)
		if err := lgr.SetBalance(common.HexToAddress(gb.Address), balance); err != nil {
			return fmt.Errorf("failed to fund genesis account %s: %w", gb.Address, err)
		}
	}

	domainSeparator, err := codec.DomainSeparator(
		cfg.TokenName,
		cfg.TokenVersion,
		new(big.Int).SetUint64(uint64(cfg.ChainID)),
		common.HexToAddress(cfg.TokenAddress),
	)
	if err != nil {
		return fmt.Errorf("failed to compute domain separator: %w", err)
	}

	eng, err := engine.NewEngine(engine.Config{
		DomainSeparator: domainSeparator,
		Registry:        reg,
		Ledger:          lgr,
		Logger:          l,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	srv := server.NewServer(server.Config{
		Port:                 cfg.Port,
		Engine:               eng,
		Ledger:               lgr,
		Registry:             reg,
		SubmissionsPerSecond: c.Float64("rate-limit"),
		Logger:               l,
	})

	l.Sugar().Infow("Starting authorization transfer server",
		"port", cfg.Port,
		"chain", cfg.ChainName,
		"token", cfg.TokenName,
		"registry_backend", cfg.RegistryBackend,
	)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Sugar().Info("Shutting down")
	return srv.Stop()
}

func parseConfig(c *cli.Context) (*config.AuthServerConfig, error) {
	cfg := &config.AuthServerConfig{
		Port:            c.Int("port"),
		ChainID:         config.ChainId(c.Uint64("chain-id")),
		TokenName:       c.String("token-name"),
		TokenVersion:    c.String("token-version"),
		TokenAddress:    c.String("token-address"),
		RegistryBackend: config.RegistryBackend(c.String("registry-backend")),
		DataDir:         c.String("data-dir"),
		RedisAddress:    c.String("redis-address"),
		Verbose:         c.Bool("verbose"),
	}

	for _, entry := range c.StringSlice("genesis-balance") {
		address, balance, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("genesis balance must be formatted as address=balance, got %q", entry)
		}
		cfg.GenesisBalances = append(cfg.GenesisBalances, config.GenesisBalance{
			Address: address,
			Balance: balance,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func buildRegistry(cfg *config.AuthServerConfig, l *zap.Logger) (registry.Registry, error) {
	switch cfg.RegistryBackend {
	case config.RegistryBackendMemory:
		return registrymemory.NewMemoryRegistry(), nil
	case config.RegistryBackendBadger:
		return registrybadger.NewBadgerRegistry(cfg.DataDir, l)
	case config.RegistryBackendRedis:
		return registryredis.NewRedisRegistry(&registryredis.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported registry backend: %s", cfg.RegistryBackend)
	}
}
