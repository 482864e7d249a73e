// Package deploy installs a complete engine on an in-process ledger: router,
// proxies, one module and reference exchange per protocol, and one swap
// adapter and venue per swap provider. Dry runs and tests plan against it.
package deploy

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/contracts/exchange"
	"github.com/alejandrodnm/nftagg/internal/contracts/module"
	"github.com/alejandrodnm/nftagg/internal/contracts/permit"
	"github.com/alejandrodnm/nftagg/internal/contracts/router"
	"github.com/alejandrodnm/nftagg/internal/contracts/swap"
	"github.com/alejandrodnm/nftagg/internal/contracts/venue"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Deployment holds the addresses of a local engine.
type Deployment struct {
	Chain         *chain.Chain
	WETH          common.Address
	Router        common.Address
	ApprovalProxy common.Address
	PermitProxy   common.Address
	Modules       map[domain.ProtocolKind]common.Address
	Exchanges     map[domain.ProtocolKind]common.Address
	SwapAdapters  map[domain.SwapProvider]common.Address
	Venues        map[domain.SwapProvider]common.Address

	venues map[domain.SwapProvider]*venue.Venue
}

// Protocols is every protocol a local deployment serves. Pool exchanges
// deliver to the caller, so their module forwards purchases itself.
var Protocols = []domain.ProtocolKind{domain.ProtocolOrderbook, domain.ProtocolPool, domain.ProtocolAuction}

// Providers is every swap provider a local deployment serves.
var Providers = []domain.SwapProvider{domain.SwapUniswapV3, domain.SwapOneInch}

// Local deploys the engine on c.
func Local(c *chain.Chain) *Deployment {
	d := &Deployment{
		Chain:        c,
		Modules:      make(map[domain.ProtocolKind]common.Address),
		Exchanges:    make(map[domain.ProtocolKind]common.Address),
		SwapAdapters: make(map[domain.SwapProvider]common.Address),
		Venues:       make(map[domain.SwapProvider]common.Address),
		venues:       make(map[domain.SwapProvider]*venue.Venue),
	}

	d.WETH = c.NewAddress("weth")
	c.Deploy(d.WETH, chain.NewWETH())
	d.Router = c.NewAddress("router")
	c.Deploy(d.Router, router.New())
	d.ApprovalProxy = c.NewAddress("approval-proxy")
	c.Deploy(d.ApprovalProxy, permit.NewApprovalProxy(d.Router))
	d.PermitProxy = c.NewAddress("permit-proxy")
	c.Deploy(d.PermitProxy, permit.NewPermitProxy(d.Router))

	for _, kind := range Protocols {
		x := c.NewAddress("exchange-" + string(kind))
		deliversToRecipient := kind != domain.ProtocolPool
		if deliversToRecipient {
			c.Deploy(x, exchange.New("Exchange("+string(kind)+")"))
		} else {
			c.Deploy(x, exchange.NewDeliverToCaller("Exchange("+string(kind)+")"))
		}
		m := c.NewAddress("module-" + string(kind))
		c.Deploy(m, module.New("Module("+string(kind)+")", module.Protocol{
			Kind:                kind,
			Exchange:            x,
			DeliversToRecipient: deliversToRecipient,
		}))
		d.Exchanges[kind] = x
		d.Modules[kind] = m
	}

	for _, p := range Providers {
		v := venue.New("Venue(" + string(p) + ")")
		va := c.NewAddress("venue-" + string(p))
		c.Deploy(va, v)
		sa := c.NewAddress("swap-" + string(p))
		c.Deploy(sa, swap.New("SwapAdapter("+string(p)+")", d.WETH, va))
		d.venues[p] = v
		d.Venues[p] = va
		d.SwapAdapters[p] = sa
	}

	slog.Debug("deploy: local engine ready", "router", d.Router.Hex(), "modules", len(d.Modules), "swap_adapters", len(d.SwapAdapters))
	return d
}

// SetRate lists tokenIn -> tokenOut on the provider's venue.
func (d *Deployment) SetRate(p domain.SwapProvider, tokenIn, tokenOut common.Address, r venue.Rate) {
	d.venues[p].SetRate(tokenIn, tokenOut, r)
}

// Quoter returns a swap quoter reading the local venues.
func (d *Deployment) Quoter() *venue.Quoter {
	return venue.NewQuoter(d.Chain, d.WETH, d.Venues)
}
