package cmd

import (
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapd/config"
	"swapd/pkg/bridge"
	"swapd/pkg/chainrpc"
	"swapd/pkg/fees"
	"swapd/pkg/oracle"
	"swapd/pkg/resilience"
	"swapd/pkg/swap"
	"swapd/pkg/txbuilder"
)

// engine bundles the wired-up service graph every command runs against.
type engine struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *bridge.Registry
	orch     *swap.Orchestrator
}

// newEngine loads configuration and constructs the full swap engine.
func newEngine(cmd *cobra.Command) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	log, err := newLogger(verbose)
	if err != nil {
		return nil, err
	}

	sponsorKey, err := solana.PrivateKeyFromBase58(cfg.SponsorPrivateKey)
	if err != nil {
		return nil, err
	}
	feedAccount, err := solana.PublicKeyFromBase58(cfg.OracleFeedAccount)
	if err != nil {
		return nil, err
	}
	usdcMint, err := solana.PublicKeyFromBase58(cfg.USDCMint)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewBreakers(log)
	chain := chainrpc.NewSolanaClient(cfg.RPCURL, cfg.Commitment, log, breakers)

	px := oracle.New(chain, feedAccount, cfg.OracleTTL, cfg.OracleMaxAge, log)
	calc := fees.NewCalculator(px, cfg.PlatformFeeBps)
	validator := fees.NewValidator(calc, cfg.MaxSponsorCostUSD, log)
	builder := txbuilder.New(chain, sponsorKey, usdcMint, log)

	registry := bridge.NewRegistry(log)
	if cfg.OneClickJWT != "" {
		registry.Register(bridge.NewNearIntents(cfg.OneClickJWT, cfg.OneClickBaseURL, chain, log, breakers))
	}
	registry.Register(bridge.NewAllbridge(cfg.AllbridgeBaseURL, log, breakers))

	repo, err := swap.NewFileRepository(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	orch := swap.NewOrchestrator(registry, chain, builder, calc, validator, repo, swap.Options{
		VolatilityBuffer:   cfg.VolatilityBuffer,
		MaxDriftPercent:    cfg.MaxDriftPercent,
		PendingTTL:         cfg.PendingTTL,
		MonitorInterval:    cfg.MonitorInterval,
		MonitorMaxAttempts: cfg.MonitorMaxAttempts,
	}, log)

	return &engine{
		cfg:      cfg,
		log:      log,
		registry: registry,
		orch:     orch,
	}, nil
}

// newLogger builds the CLI logger. Quiet by default so command output
// stays readable; verbose mode surfaces the engine's structured logs.
func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if !verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zcfg.Build()
}
