package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/config"
	"github.com/alejandrodnm/nftagg/internal/adapters/onchain"
	"github.com/alejandrodnm/nftagg/internal/adapters/orders"
	"github.com/alejandrodnm/nftagg/internal/adapters/storage"
	"github.com/alejandrodnm/nftagg/internal/application/executor"
	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/contracts/deploy"
	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/planner"
	"github.com/alejandrodnm/nftagg/internal/ports"
)

// environment holds the wired adapters.
type environment struct {
	orders       ports.OrderSource
	file         *orders.FileSource
	planner      *planner.Planner
	executor     *executor.Executor
	storage      ports.PlanStorage
	defaultTaker common.Address
	local        *chain.Chain
}

func (e *environment) Close() {
	if e.storage == nil {
		return
	}
	if err := e.storage.Close(); err != nil {
		slog.Warn("storage close failed", "err", err)
	}
}

// fund credits the taker with native currency on the local ledger.
func (e *environment) fund(taker common.Address, amount string) error {
	if e.local == nil {
		return fmt.Errorf("-fund only works against the local ledger")
	}
	v, err := domain.ParseUnits(amount, domain.NativeDecimals)
	if err != nil {
		return fmt.Errorf("-fund: %w", err)
	}
	return e.local.Fund(taker, v)
}

func wire(cfg *config.Config, f flags) (*environment, error) {
	env := &environment{}

	if f.ordersPath != "" {
		fs, err := orders.LoadFile(f.ordersPath)
		if err != nil {
			return nil, err
		}
		env.file = fs
		env.orders = fs
	} else {
		if cfg.OrderSource.BaseURL == "" {
			return nil, fmt.Errorf("no order source: pass -orders or set order_source.base_url")
		}
		env.orders = orders.NewClient(cfg.OrderSource.BaseURL, cfg.OrderSource.APIKey, cfg.OrderSource.RatePerSec)
	}

	pcfg := planner.Config{
		ChainID:         big.NewInt(cfg.Chain.ChainID),
		MaxGasPerTx:     cfg.Planner.MaxGasPerTx,
		MaxPayloadBytes: cfg.Planner.MaxPayloadBytes,
		SlippageBps:     cfg.Planner.SlippageBps,
		PermitTokens:    addresses(cfg.Planner.PermitTokens),
		PermitTTL:       cfg.PermitTTL(),
	}

	if cfg.Chain.Local() {
		return wireLocal(env, cfg, pcfg)
	}
	return wireRemote(env, cfg, pcfg)
}

// wireLocal plans and executes against an engine deployed on the in-memory ledger.
func wireLocal(env *environment, cfg *config.Config, pcfg planner.Config) (*environment, error) {
	c := chain.New(cfg.Chain.ChainID, uint64(time.Now().Unix()))
	d := deploy.Local(c)
	env.local = c

	pcfg.Router = d.Router
	pcfg.ApprovalProxy = d.ApprovalProxy
	pcfg.PermitProxy = d.PermitProxy
	pcfg.WETH = d.WETH
	pcfg.SwapAdapters = d.SwapAdapters
	pcfg.Now = func() time.Time { return time.Unix(int64(c.Time()), 0) }

	var specs []planner.ModuleSpec
	for _, kind := range deploy.Protocols {
		spec := planner.ModuleSpec{
			Kind:           kind,
			Address:        d.Modules[kind],
			SupportsOffers: kind == domain.ProtocolOrderbook,
		}
		if m, ok := cfg.Contracts.Modules[string(kind)]; ok {
			spec.GasPerOrder = m.GasPerOrder
			spec.SupportsOffers = m.SupportsOffers
			spec.RequiresTakerSignature = m.RequiresTakerSignature
			spec.Currencies = addresses(m.Currencies)
		}
		specs = append(specs, spec)
	}
	env.planner = planner.New(pcfg, planner.NewRegistry(specs...), d.Quoter(), c)

	// the key only signs permits; the local ledger does not check transaction signatures
	signer, err := onchain.NewClient(nil, cfg.Chain.ChainID, cfg.Chain.PrivateKey)
	if err != nil {
		return nil, err
	}
	env.defaultTaker = signer.Address()
	env.executor = executor.New(c, signer, nil)

	slog.Info("local ledger ready", "router", d.Router.Hex(), "modules", len(specs))
	return env, nil
}

func wireRemote(env *environment, cfg *config.Config, pcfg planner.Config) (*environment, error) {
	client, err := onchain.Dial(cfg.Chain.RPCURL, cfg.Chain.ChainID, cfg.Chain.PrivateKey)
	if err != nil {
		return nil, err
	}

	ct := cfg.Contracts
	pcfg.Router = common.HexToAddress(ct.Router)
	pcfg.ApprovalProxy = common.HexToAddress(ct.ApprovalProxy)
	pcfg.PermitProxy = common.HexToAddress(ct.PermitProxy)
	pcfg.WETH = common.HexToAddress(ct.WETH)
	pcfg.SwapAdapters, err = providers(ct.SwapAdapters)
	if err != nil {
		return nil, err
	}
	quoters, err := providers(ct.Quoters)
	if err != nil {
		return nil, err
	}

	var specs []planner.ModuleSpec
	for name, m := range ct.Modules {
		kind, err := domain.ParseProtocolKind(name)
		if err != nil {
			return nil, fmt.Errorf("contracts.modules: %w", err)
		}
		specs = append(specs, planner.ModuleSpec{
			Kind:                   kind,
			Address:                common.HexToAddress(m.Address),
			Currencies:             addresses(m.Currencies),
			GasPerOrder:            m.GasPerOrder,
			SupportsOffers:         m.SupportsOffers,
			RequiresTakerSignature: m.RequiresTakerSignature,
		})
	}

	quoter := planner.NewCachedQuoter(onchain.NewQuoter(client, pcfg.WETH, quoters), cfg.QuoteCacheTTL())
	env.planner = planner.New(pcfg, planner.NewRegistry(specs...), quoter, client)
	env.defaultTaker = client.Address()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	env.storage = store
	env.executor = executor.New(client, client, store)

	slog.Info("connected", "rpc", cfg.Chain.RPCURL, "chain_id", cfg.Chain.ChainID, "modules", len(specs), "signer", client.Address().Hex())
	return env, nil
}

func addresses(hex []string) []common.Address {
	out := make([]common.Address, 0, len(hex))
	for _, h := range hex {
		out = append(out, common.HexToAddress(h))
	}
	return out
}

func providers(m map[string]string) (map[domain.SwapProvider]common.Address, error) {
	out := make(map[domain.SwapProvider]common.Address, len(m))
	for name, addr := range m {
		p, err := domain.ParseSwapProvider(name)
		if err != nil {
			return nil, err
		}
		out[p] = common.HexToAddress(addr)
	}
	return out, nil
}
