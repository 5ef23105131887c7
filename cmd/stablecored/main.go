package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablecore/config"
	"stablecore/core/state"
	"stablecore/crypto"
	"stablecore/native/oracle"
	"stablecore/native/stability"
	"stablecore/native/token"
	"stablecore/native/vault"
	"stablecore/observability/logging"
	"stablecore/rpc"
	"stablecore/storage"
)

// Module accounts are derived from fixed tags so they are stable across
// restarts and never collide with user keys.
func moduleAccount(tag string) crypto.Address {
	raw := make([]byte, 20)
	copy(raw, []byte("module/"+tag))
	return crypto.MustNewAddress(raw)
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var fileOpts *logging.FileOptions
	if strings.TrimSpace(cfg.LogFile.Path) != "" {
		fileOpts = &logging.FileOptions{
			Path:       cfg.LogFile.Path,
			MaxSizeMB:  cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAgeDays: cfg.LogFile.MaxAgeDays,
		}
	}
	logger := logging.Setup("stablecored", cfg.Environment, fileOpts)

	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, "")
	if err != nil {
		logger.Error("failed to load owner keystore", "error", err, "path", cfg.OwnerKeystorePath)
		os.Exit(1)
	}
	owner := ownerKey.PubKey().Address()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	ledger := token.NewLedger(manager)

	vaultModule := moduleAccount("vaultops")
	poolModule := moduleAccount("stability")

	engine := vault.NewEngine(owner, vaultModule)
	engine.SetState(manager)
	engine.SetTokenBank(ledger)
	engine.SetNowFunc(func() uint64 { return uint64(time.Now().Unix()) })

	pool := stability.NewPool(poolModule, vaultModule, cfg.StableSymbol)
	pool.SetState(manager)
	pool.SetTokenBank(ledger)
	pool.SetAssetIndexer(engine.Store())
	engine.SetStabilityPool(pool)

	router := oracle.NewRouter()
	manual := oracle.NewManualFeed()
	engine.SetOracle(router)

	if err := bootstrap(cfg, engine, ledger, router, manual, owner, vaultModule, poolModule, logger); err != nil {
		logger.Error("genesis bootstrap failed", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	server := rpc.NewServer(engine, pool, ledger, manual, cfg.RateLimitPerMin, cfg.RateLimitBurst)
	logger.Info("rpc listening", "address", cfg.RPCAddress, "network", cfg.NetworkName, "owner", owner.String(),
		logging.MaskField("authToken", os.Getenv("STABLECORE_RPC_TOKEN")))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}

// bootstrap applies the genesis configuration: token registration, module
// authorities, collateral parameters and oracle wiring. Every step is
// idempotent so restarts replay it safely.
func bootstrap(cfg *config.Config, engine *vault.Engine, ledger *token.Ledger,
	router *oracle.Router, manual *oracle.ManualFeed,
	owner, vaultModule, poolModule crypto.Address, logger *slog.Logger) error {

	stableSymbol := token.NormalizeSymbol(cfg.StableSymbol)
	if err := ledger.Register(stableSymbol, 18); err != nil && err != token.ErrTokenExists {
		return err
	}
	if err := ledger.SetAuthority(stableSymbol, vaultModule, true); err != nil {
		return err
	}
	if err := ledger.SetAuthority(stableSymbol, poolModule, true); err != nil {
		return err
	}

	treasury := crypto.Address{}
	if trimmed := strings.TrimSpace(cfg.Treasury); trimmed != "" {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return err
		}
		treasury = decoded
	}
	engine.SetStableToken(stableSymbol)
	engine.SetTreasury(treasury)

	g, err := engine.Store().Global()
	if err != nil {
		return err
	}
	if !g.Initialized {
		if err := engine.Initialize(owner); err != nil {
			return err
		}
		fee, err := config.ParseAmount(cfg.RedemptionFee)
		if err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := engine.SetRedemptionFee(owner, fee); err != nil {
				return err
			}
		}
	}

	known := make(map[string]struct{})
	if g != nil {
		for _, symbol := range g.ValidCollateral {
			known[symbol] = struct{}{}
		}
	}
	for _, entry := range cfg.Collateral {
		symbol := token.NormalizeSymbol(entry.Symbol)
		if err := ledger.Register(symbol, entry.Decimals); err != nil && err != token.ErrTokenExists {
			return err
		}
		if _, exists := known[symbol]; !exists {
			if err := engine.AddCollateral(owner, symbol, entry.Decimals); err != nil {
				return err
			}
			minRange, _ := config.ParseAmount(entry.MinRange)
			maxRange, _ := config.ParseAmount(entry.MaxRange)
			mcrFactor, _ := config.ParseAmount(entry.MCRFactor)
			baseFee, _ := config.ParseAmount(entry.BaseFee)
			maxFee, _ := config.ParseAmount(entry.MaxFee)
			minNetDebt, _ := config.ParseAmount(entry.MinNetDebt)
			mintCap, _ := config.ParseAmount(entry.MintCap)
			penalty, _ := config.ParseAmount(entry.LiquidationPenalty)
			if err := engine.SetCollateralParameters(owner, symbol, minRange, maxRange, mcrFactor, baseFee, maxFee, minNetDebt, mintCap, penalty); err != nil {
				return err
			}
			if entry.Active {
				if err := engine.SetIsActive(owner, symbol, true); err != nil {
					return err
				}
			}
			logger.Info("collateral registered", "symbol", symbol, "active", entry.Active)
		}
		feed := oracle.NewFeed(manual, time.Duration(entry.OracleMaxAgeSec)*time.Second, entry.OracleDecimals)
		router.Register(symbol, feed)
	}
	return nil
}
