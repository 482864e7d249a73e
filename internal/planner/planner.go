package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"

	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/ports"
)

const (
	defaultMaxGasPerTx     = 12_000_000
	defaultMaxPayloadBytes = 120_000
	defaultSlippageBps     = 50
	defaultPermitTTL       = 30 * time.Minute
)

// Config holds the deployment addresses and packing ceilings.
type Config struct {
	ChainID         *big.Int
	Router          common.Address
	ApprovalProxy   common.Address
	PermitProxy     common.Address
	WETH            common.Address
	SwapAdapters    map[domain.SwapProvider]common.Address
	MaxGasPerTx     uint64
	MaxPayloadBytes int
	SlippageBps     uint16
	// ERC-20 tokens pulled through signed permits instead of standing allowances.
	PermitTokens []common.Address
	PermitTTL    time.Duration
	Now          func() time.Time
}

func (c *Config) setDefaults() {
	if c.ChainID == nil {
		c.ChainID = big.NewInt(1)
	}
	if c.MaxGasPerTx == 0 {
		c.MaxGasPerTx = defaultMaxGasPerTx
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if c.SlippageBps == 0 {
		c.SlippageBps = defaultSlippageBps
	}
	if c.PermitTTL == 0 {
		c.PermitTTL = defaultPermitTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Planner turns order details into transaction plans. It keeps no state
// between calls and is safe for concurrent use.
type Planner struct {
	cfg        Config
	registry   *Registry
	quoter     ports.SwapQuoter
	allowances ports.AllowanceReader
	permit     map[common.Address]bool
}

// New creates a planner.
func New(cfg Config, registry *Registry, quoter ports.SwapQuoter, allowances ports.AllowanceReader) *Planner {
	cfg.setDefaults()
	permit := make(map[common.Address]bool, len(cfg.PermitTokens))
	for _, t := range cfg.PermitTokens {
		permit[t] = true
	}
	return &Planner{
		cfg:        cfg,
		registry:   registry,
		quoter:     quoter,
		allowances: allowances,
		permit:     permit,
	}
}

// item is one validated detail, listing or offer.
type item struct {
	index    int
	id       string
	protocol domain.ProtocolKind
	spec     ModuleSpec
	currency common.Address
	order    domain.Order
	fees     []domain.Fee
}

// PlanListings plans the purchase of listings on behalf of taker.
func (p *Planner) PlanListings(ctx context.Context, listings []domain.ListingDetail, taker common.Address, opts domain.Options) ([]domain.TransactionPlan, error) {
	items, err := p.validateListings(listings, taker)
	if err != nil {
		return nil, fmt.Errorf("planner.PlanListings: %w", err)
	}
	units, err := p.buildUnits(ctx, items, taker, opts, domain.SideListing)
	if err != nil {
		return nil, fmt.Errorf("planner.PlanListings: %w", err)
	}
	plans, err := p.finish(ctx, units, taker, opts)
	if err != nil {
		return nil, fmt.Errorf("planner.PlanListings: %w", err)
	}
	slog.Debug("planner: listings planned", "orders", len(listings), "plans", len(plans))
	return plans, nil
}

// PlanBids plans accepting offers with NFTs owned by taker.
func (p *Planner) PlanBids(ctx context.Context, bids []domain.BidDetail, taker common.Address, opts domain.Options) ([]domain.TransactionPlan, error) {
	items, err := p.validateBids(bids, taker)
	if err != nil {
		return nil, fmt.Errorf("planner.PlanBids: %w", err)
	}
	units, err := p.buildUnits(ctx, items, taker, opts, domain.SideOffer)
	if err != nil {
		return nil, fmt.Errorf("planner.PlanBids: %w", err)
	}
	plans, err := p.finish(ctx, units, taker, opts)
	if err != nil {
		return nil, fmt.Errorf("planner.PlanBids: %w", err)
	}
	slog.Debug("planner: bids planned", "orders", len(bids), "plans", len(plans))
	return plans, nil
}

func (p *Planner) finish(ctx context.Context, units []*unit, taker common.Address, opts domain.Options) ([]domain.TransactionPlan, error) {
	for _, u := range units {
		p.chooseEntry(u, opts)
	}
	auth, err := p.resolveAuth(ctx, units, taker)
	if err != nil {
		return nil, err
	}
	return p.pack(units, auth, taker, opts)
}

func (p *Planner) slippage(opts domain.Options) uint64 {
	if opts.SlippageBps != 0 {
		return uint64(opts.SlippageBps)
	}
	return uint64(p.cfg.SlippageBps)
}

func (p *Planner) validateListings(listings []domain.ListingDetail, taker common.Address) ([]item, error) {
	var errs error
	if taker == (common.Address{}) {
		errs = multierr.Append(errs, fmt.Errorf("%w: taker is the zero address", domain.ErrInvalidOrder))
	}
	items := make([]item, 0, len(listings))
	for i, l := range listings {
		it, err := p.validateDetail(i, l.OrderID, l.Protocol, l.ContractKind, l.Contract, l.TokenID, l.Units(), l.Order, l.Currency, l.Price, l.Fees)
		if err == nil && it.order.Side != domain.SideListing {
			err = fmt.Errorf("%w: order is not a listing", domain.ErrInvalidOrder)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("listing %d (%s): %w", i, l.OrderID, err))
			continue
		}
		items = append(items, it)
	}
	if errs != nil {
		return nil, errs
	}
	return items, nil
}

func (p *Planner) validateBids(bids []domain.BidDetail, taker common.Address) ([]item, error) {
	var errs error
	if taker == (common.Address{}) {
		errs = multierr.Append(errs, fmt.Errorf("%w: taker is the zero address", domain.ErrInvalidOrder))
	}
	items := make([]item, 0, len(bids))
	for i, b := range bids {
		it, err := p.validateDetail(i, b.OrderID, b.Protocol, b.ContractKind, b.Contract, b.TokenID, b.Units(), b.Order, b.Currency, b.Price, b.Fees)
		switch {
		case err != nil:
		case it.order.Side != domain.SideOffer:
			err = fmt.Errorf("%w: order is not an offer", domain.ErrInvalidOrder)
		case !it.spec.SupportsOffers:
			err = fmt.Errorf("%w: %s module does not accept offers", domain.ErrUnsupportedProtocol, b.Protocol)
		case domain.IsNative(it.currency):
			err = fmt.Errorf("%w: offers settle in ERC-20 only", domain.ErrUnsupportedCurrency)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bid %d (%s): %w", i, b.OrderID, err))
			continue
		}
		items = append(items, it)
	}
	if errs != nil {
		return nil, errs
	}
	return items, nil
}

func (p *Planner) validateDetail(
	index int,
	id string,
	protocol domain.ProtocolKind,
	kind domain.ContractKind,
	contract common.Address,
	tokenID, units *big.Int,
	order domain.Order,
	currency common.Address,
	price *big.Int,
	fees []domain.Fee,
) (item, error) {
	spec, err := p.registry.Lookup(protocol)
	if err != nil {
		return item{}, err
	}
	if !spec.Accepts(currency) {
		return item{}, fmt.Errorf("%w: %s does not settle in %s", domain.ErrUnsupportedCurrency, protocol, currency.Hex())
	}
	if price == nil || price.Sign() <= 0 {
		return item{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidOrder)
	}
	if kind != domain.ContractERC721 && kind != domain.ContractERC1155 {
		return item{}, fmt.Errorf("%w: contract kind %s", domain.ErrInvalidOrder, kind)
	}
	if kind == domain.ContractERC721 && units.Cmp(big.NewInt(1)) != 0 {
		return item{}, fmt.Errorf("%w: erc721 amount must be 1", domain.ErrInvalidOrder)
	}
	if order.Currency != currency {
		return item{}, fmt.Errorf("%w: order currency %s differs from detail currency %s", domain.ErrInvalidOrder, order.Currency.Hex(), currency.Hex())
	}
	if order.Price != nil && order.Price.Cmp(price) != 0 {
		return item{}, fmt.Errorf("%w: order price %s differs from detail price %s", domain.ErrInvalidOrder, order.Price, price)
	}
	if order.Collection != (common.Address{}) && order.Collection != contract {
		return item{}, fmt.Errorf("%w: order collection differs from detail contract", domain.ErrInvalidOrder)
	}
	if order.TokenID != nil && tokenID != nil && order.TokenID.Cmp(tokenID) != 0 {
		return item{}, fmt.Errorf("%w: order token id differs from detail token id", domain.ErrInvalidOrder)
	}
	for _, f := range fees {
		if f.Amount == nil || f.Amount.Sign() < 0 {
			return item{}, fmt.Errorf("%w: fee to %s must be non-negative", domain.ErrInvalidOrder, f.Recipient.Hex())
		}
		if f.Recipient == (common.Address{}) {
			return item{}, fmt.Errorf("%w: fee recipient is the zero address", domain.ErrInvalidOrder)
		}
	}

	order.Price = new(big.Int).Set(price)
	order.Kind = kind
	order.Collection = contract
	if order.TokenID == nil {
		order.TokenID = tokenID
	}
	if order.Amount == nil || order.Amount.Sign() == 0 {
		order.Amount = units
	}
	return item{
		index:    index,
		id:       id,
		protocol: protocol,
		spec:     spec,
		currency: currency,
		order:    order,
		fees:     fees,
	}, nil
}
