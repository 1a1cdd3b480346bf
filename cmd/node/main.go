// Command node starts a chestchain economy node.
package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tolelom/chestchain/config"
	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/dispatcher"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/game"
	"github.com/tolelom/chestchain/indexer"
	"github.com/tolelom/chestchain/rpc"
	"github.com/tolelom/chestchain/sequencer"
	"github.com/tolelom/chestchain/storage"
	"github.com/tolelom/chestchain/tokensvc"
	"github.com/tolelom/chestchain/vm"
	"github.com/tolelom/chestchain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/chestchain/vm/modules/gift"
	_ "github.com/tolelom/chestchain/vm/modules/player"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "", "path to host keystore file (overrides host_key_file)")
	genKey := flag.Bool("genkey", false, "generate a new host key and exit")
	dev := flag.Bool("dev", false, "human-readable debug logging")
	flag.Parse()

	log, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// A .env next to the binary may carry CHEST_PASSWORD; real env vars win.
	_ = godotenv.Load(".env")

	// Read keystore password from environment rather than a flag, which would leak via ps.
	password := os.Getenv("CHEST_PASSWORD")
	if password == "" {
		log.Warn("CHEST_PASSWORD not set; keystore will use an empty password")
	}

	cfg, err := loadConfig(*cfgPath, log)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	if *keyPath != "" {
		cfg.HostKeyFile = *keyPath
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal("generate key", zap.Error(err))
		}
		if err := wallet.SaveKey(cfg.HostKeyFile, password, w.PrivKey()); err != nil {
			log.Fatal("save key", zap.Error(err))
		}
		fmt.Printf("Generated key. Public key (host address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", cfg.HostKeyFile)
		return
	}

	// ---- host key ----
	host, created, err := wallet.LoadOrCreate(cfg.HostKeyFile, password)
	if err != nil {
		log.Fatal("load host key", zap.Error(err))
	}
	if created {
		log.Info("generated host key", zap.String("file", cfg.HostKeyFile))
	}

	// ---- economy ----
	econ := game.DefaultConfig()
	if cfg.EconomyFile != "" {
		if econ, err = game.LoadConfig(cfg.EconomyFile); err != nil {
			log.Fatal("economy config", zap.Error(err))
		}
	}
	engine, err := game.NewEngine(econ)
	if err != nil {
		log.Fatal("economy config", zap.Error(err))
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("mkdir data dir", zap.Error(err))
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	// State, blocks and indexes share one DB under different key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		log.Fatal("blockchain init", zap.Error(err))
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, host.PrivKey())
		if err != nil {
			log.Fatal("genesis", zap.Error(err))
		}
		if err := bc.AddBlock(genesis); err != nil {
			log.Fatal("add genesis", zap.Error(err))
		}
		log.Info("genesis block committed", zap.String("hash", genesis.Hash))
	}
	meta, err := state.GetMeta()
	if err != nil {
		log.Fatal("load meta", zap.Error(err))
	}
	if meta.Host != host.PubKey() {
		log.Fatal("host key does not match genesis", zap.String("genesis_host", meta.Host))
	}

	emitter := events.NewEmitter(log)
	idx := indexer.New(db, emitter, log)
	mempool := core.NewMempool(cfg.MempoolSize)
	exec := vm.NewExecutor(state, engine, host.PrivKey(), vm.WithLogger(log))
	producer := sequencer.New(bc, state, mempool, exec, emitter, host.PrivKey(),
		sequencer.WithMaxBlockTxs(cfg.MaxBlockTxs), sequencer.WithLogger(log))

	// ---- token service ----
	timeout, _ := cfg.TokenService.CallTimeout()
	var token tokensvc.Service
	if cfg.TokenService.Endpoint == "" {
		supply := new(big.Int).Mul(
			new(big.Int).SetUint64(cfg.TokenService.DevSupply),
			new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(econ.TokenDecimals)), nil))
		token = tokensvc.NewMemory(meta.Treasury, supply)
		log.Warn("no token service endpoint; using in-process ledger", zap.String("supply", supply.String()))
	} else {
		token = tokensvc.NewHTTPClient(cfg.TokenService.Endpoint, meta.TokenContract, cfg.TokenService.Secret, timeout)
	}

	// ---- settlement dispatcher ----
	disp := dispatcher.New(dispatcher.Config{
		ChainID:       cfg.ChainID,
		SweepSchedule: cfg.Dispatcher.SweepSchedule,
		CallTimeout:   timeout,
		MaxAttempts:   cfg.Dispatcher.MaxAttempts,
	}, state, mempool, token, host, log)
	disp.Subscribe(emitter)
	if err := disp.Start(); err != nil {
		log.Fatal("dispatcher start", zap.Error(err))
	}
	defer disp.Stop()

	// ---- RPC ----
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, cfg.ChainID)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, cfg.RPCAuthToken, log)
	if err := rpcServer.Start(); err != nil {
		log.Fatal("rpc start", zap.Error(err))
	}
	defer func() { _ = rpcServer.Stop() }()
	if cfg.RPCAuthToken != "" {
		log.Info("RPC bearer token authentication enabled")
	}

	// ---- block production ----
	interval, _ := cfg.Interval()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		producer.Run(interval, done)
	}()
	log.Info("node running",
		zap.String("chain", cfg.ChainID),
		zap.String("host", host.PubKey()),
		zap.Duration("block_interval", interval),
		zap.Strings("calls", typeNames(vm.Registered())))

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	// Stop producing first so no block is half-written; deferred calls then
	// run in LIFO: rpcServer.Stop → disp.Stop → db.Close.
	close(done)
	wg.Wait()
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(path string, log *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("config file not found, using defaults", zap.String("path", path))
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func typeNames(types []core.TxType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
