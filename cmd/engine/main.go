package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ammEngine/internal/config"
	"ammEngine/internal/engine"
	"ammEngine/internal/model"
	"ammEngine/internal/storage"
	"ammEngine/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "engine",
		Short:        "Concentrated-liquidity AMM engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN (empty runs in-memory)")
	root.PersistentFlags().String("journal", "./data/snapshots.jsonl", "snapshot journal JSONL path")
	root.PersistentFlags().StringSlice("coins", nil, "supported coin symbols (empty accepts all)")
	root.PersistentFlags().String("min-slippage", "0", "minimum allowed slippage")
	root.PersistentFlags().String("max-slippage", "0.5", "maximum allowed slippage")
	root.PersistentFlags().String("min-liquidity", "1", "minimum position liquidity")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	createPoolCmd := &cobra.Command{
		Use:   "create-pool",
		Short: "Register a pool and its tick bitmap",
		RunE:  runCreatePool,
	}
	createPoolCmd.Flags().String("pair", "", "pool pair, e.g. ETH-USDC")
	createPoolCmd.Flags().String("token0", "", "base token symbol")
	createPoolCmd.Flags().String("token1", "", "quote token symbol")
	createPoolCmd.Flags().Int("tick-spacing", 60, "tick spacing")
	createPoolCmd.Flags().String("fee-pct", "0.003", "swap fee fraction")
	createPoolCmd.Flags().String("protocol-fee-pct", "0.1", "protocol share of the swap fee")
	createPoolCmd.Flags().String("init-price", "", "bootstrap price (empty defers to first deposit)")
	root.AddCommand(createPoolCmd)

	openPositionCmd := &cobra.Command{
		Use:   "open-position",
		Short: "Provision liquidity in a tick range",
		RunE:  runOpenPosition,
	}
	openPositionCmd.Flags().String("pair", "", "pool pair")
	openPositionCmd.Flags().String("account0", "", "token0 funding account key")
	openPositionCmd.Flags().String("account1", "", "token1 funding account key")
	openPositionCmd.Flags().Int("tick-lower", 0, "lower tick bound")
	openPositionCmd.Flags().Int("tick-upper", 0, "upper tick bound")
	openPositionCmd.Flags().String("amount0", "0", "token0 deposit")
	openPositionCmd.Flags().String("amount1", "0", "token1 deposit")
	openPositionCmd.Flags().String("slippage", "0.01", "slippage tolerance")
	root.AddCommand(openPositionCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute a swap order against a pool",
		RunE:  runSwap,
	}
	swapCmd.Flags().String("pair", "", "pool pair")
	swapCmd.Flags().String("account0", "", "token0 account key")
	swapCmd.Flags().String("account1", "", "token1 account key")
	swapCmd.Flags().Bool("zero-for-one", true, "sell token0 for token1")
	swapCmd.Flags().String("amount-in", "0", "input amount, fees included")
	swapCmd.Flags().String("estimated-out", "0", "expected output for the slippage guard (0 skips)")
	swapCmd.Flags().String("slippage", "0.01", "slippage tolerance")
	root.AddCommand(swapCmd)

	createAccountCmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create or top up a balance account",
		RunE:  runCreateAccount,
	}
	createAccountCmd.Flags().String("key", "", "account key")
	createAccountCmd.Flags().String("owner", "", "account owner")
	createAccountCmd.Flags().String("coin", "", "account coin symbol")
	createAccountCmd.Flags().String("credit", "0", "amount to credit")
	root.AddCommand(createAccountCmd)

	showPoolCmd := &cobra.Command{
		Use:   "show-pool",
		Short: "Print a pool snapshot and its initialized ticks",
		RunE:  runShowPool,
	}
	showPoolCmd.Flags().String("pair", "", "pool pair")
	root.AddCommand(showPoolCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime bundles the wired dependencies of one command invocation.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	engine *engine.Engine
	store  storage.Store
	close  func()
}

func setup(cmd *cobra.Command) (*runtime, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}

	var store storage.Store
	closeStore := func() {}
	if cfg.PGDSN != "" {
		pgStore, err := postgres.NewStore(cmd.Context(), cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = pgStore
		closeStore = pgStore.Close
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("no pg-dsn configured, state will not survive this process")
	}

	journal := storage.NewSnapshotJournal(cfg.JournalPath)
	eng := engine.New(store, journal, limits, cfg.Coins(), logger)

	return &runtime{cfg: cfg, logger: logger, engine: eng, store: store, close: closeStore}, nil
}

func runCreatePool(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.logger.Sync()

	params := engine.CreatePoolParams{}
	params.Pair, _ = cmd.Flags().GetString("pair")
	params.Token0, _ = cmd.Flags().GetString("token0")
	params.Token1, _ = cmd.Flags().GetString("token1")
	params.TickSpacing, _ = cmd.Flags().GetInt("tick-spacing")
	if params.FeePct, err = flagDecimal(cmd, "fee-pct"); err != nil {
		return err
	}
	if params.ProtocolFeePct, err = flagDecimal(cmd, "protocol-fee-pct"); err != nil {
		return err
	}
	if raw, _ := cmd.Flags().GetString("init-price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("parse init-price: %w", err)
		}
		params.InitPrice = &price
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	pool, err := rt.engine.CreatePool(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(pool.MessageView())
}

func runOpenPosition(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.logger.Sync()

	params := engine.OpenPositionParams{}
	params.Pair, _ = cmd.Flags().GetString("pair")
	params.Account0Key, _ = cmd.Flags().GetString("account0")
	params.Account1Key, _ = cmd.Flags().GetString("account1")
	params.TickLower, _ = cmd.Flags().GetInt("tick-lower")
	params.TickUpper, _ = cmd.Flags().GetInt("tick-upper")
	if params.Amount0, err = flagDecimal(cmd, "amount0"); err != nil {
		return err
	}
	if params.Amount1, err = flagDecimal(cmd, "amount1"); err != nil {
		return err
	}
	if params.Slippage, err = flagDecimal(cmd, "slippage"); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	position, err := rt.engine.OpenPosition(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(position.MessageView())
}

func runSwap(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.logger.Sync()

	params := engine.SwapParams{}
	params.Pair, _ = cmd.Flags().GetString("pair")
	params.Account0Key, _ = cmd.Flags().GetString("account0")
	params.Account1Key, _ = cmd.Flags().GetString("account1")
	params.ZeroForOne, _ = cmd.Flags().GetBool("zero-for-one")
	if params.AmountIn, err = flagDecimal(cmd, "amount-in"); err != nil {
		return err
	}
	if params.EstimatedAmountOut, err = flagDecimal(cmd, "estimated-out"); err != nil {
		return err
	}
	if params.Slippage, err = flagDecimal(cmd, "slippage"); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	order, err := rt.engine.ExecuteOrder(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(order.MessageView())
}

func runCreateAccount(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.logger.Sync()

	key, _ := cmd.Flags().GetString("key")
	owner, _ := cmd.Flags().GetString("owner")
	coin, _ := cmd.Flags().GetString("coin")
	if key == "" || coin == "" {
		return fmt.Errorf("key and coin are required")
	}
	credit, err := flagDecimal(cmd, "credit")
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	account, err := rt.store.Account(key)
	if err != nil {
		return err
	}
	if account == nil {
		account = model.NewAccount(key, owner, coin)
	}
	if credit.IsPositive() {
		if err := account.Credit(credit); err != nil {
			return err
		}
	}
	if err := rt.store.PutAccount(ctx, account); err != nil {
		return err
	}
	return printJSON(account.MessageView())
}

func runShowPool(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	defer rt.logger.Sync()

	pair, _ := cmd.Flags().GetString("pair")
	if pair == "" {
		return fmt.Errorf("pair is required")
	}

	pool, err := rt.store.AmmPool(pair)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("pool %s does not exist", pair)
	}

	view := pool.MessageView()
	if bitmap, err := rt.store.TickBitmap(pair); err == nil && bitmap != nil {
		view["initialized_ticks"] = bitmap.SetBits()
	}
	return printJSON(view)
}

func flagDecimal(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}

func printJSON(view map[string]any) error {
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
