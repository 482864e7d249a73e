package planner

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

const quoteConcurrency = 4

// pull is an ERC-20 amount taken from the taker before the executions run.
type pull struct {
	token  common.Address
	amount *big.Int
	to     common.Address
}

type collectionRef struct {
	address common.Address
	kind    domain.ContractKind
}

// unit is one module call together with the swap and pulls it depends on.
// Units are never split across transactions.
type unit struct {
	protocol    domain.ProtocolKind
	currency    common.Address
	items       []item
	execs       []domain.Execution
	ft          *pull
	nfts        []codec.TransferItem
	nftTo       common.Address
	collections []collectionRef
	preSigs     []domain.PreSignatureRequest
	entry       domain.EntryKind
	cost        cost
}

func (u *unit) recipient() common.Address {
	if u.ft != nil {
		return u.ft.to
	}
	return u.nftTo
}

func (p *Planner) buildUnits(ctx context.Context, items []item, taker common.Address, opts domain.Options, side domain.OrderSide) ([]*unit, error) {
	sortItems(items)
	var chunks [][]item
	for _, part := range partition(items) {
		cs, err := p.chunk(part, opts, side)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, cs...)
	}

	units := make([]*unit, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			var (
				u   *unit
				err error
			)
			if side == domain.SideOffer {
				u, err = p.offerUnit(gctx, c, taker, opts)
			} else {
				u, err = p.listingUnit(gctx, c, taker, opts)
			}
			if err != nil {
				return fmt.Errorf("%s/%s batch: %w", c[0].protocol, c[0].currency.Hex(), err)
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// sortItems orders by protocol then currency; input order breaks ties.
func sortItems(items []item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].protocol != items[j].protocol {
			return items[i].protocol < items[j].protocol
		}
		return bytes.Compare(items[i].currency.Bytes(), items[j].currency.Bytes()) < 0
	})
}

func partition(items []item) [][]item {
	var out [][]item
	start := 0
	for i := 1; i <= len(items); i++ {
		if i == len(items) || items[i].protocol != items[start].protocol || items[i].currency != items[start].currency {
			out = append(out, items[start:i:i])
			start = i
		}
	}
	return out
}

func (p *Planner) fits(c cost) bool {
	return c.gas <= p.cfg.MaxGasPerTx && c.payload <= p.cfg.MaxPayloadBytes
}

// chunk splits a partition into the largest prefixes whose unit still fits
// a transaction on its own.
func (p *Planner) chunk(part []item, opts domain.Options, side domain.OrderSide) ([][]item, error) {
	var out [][]item
	for start := 0; start < len(part); {
		end := start + 1
		if !p.fits(entryCost().add(p.shapeCost(part[start:end], opts, side))) {
			return nil, fmt.Errorf("%w: order %s exceeds gas %d / payload %d",
				domain.ErrNoViableGrouping, part[start].id, p.cfg.MaxGasPerTx, p.cfg.MaxPayloadBytes)
		}
		for end < len(part) && p.fits(entryCost().add(p.shapeCost(part[start:end+1], opts, side))) {
			end++
		}
		out = append(out, part[start:end:end])
		start = end
	}
	return out, nil
}

func (p *Planner) usesPermit(token common.Address, opts domain.Options) bool {
	return !opts.ForceApprovalProxy && p.permit[token]
}

func (p *Planner) pullCost(token common.Address, opts domain.Options) cost {
	if p.usesPermit(token, opts) {
		return permitCost()
	}
	return itemCost(1)
}

func sellsOut(currency common.Address, opts domain.Options) bool {
	return opts.SellOutCurrency != nil && *opts.SellOutCurrency != currency
}

// shapeCost estimates a unit before any quote is fetched.
func (p *Planner) shapeCost(chunk []item, opts domain.Options, side domain.OrderSide) cost {
	spec := chunk[0].spec
	currency := chunk[0].currency
	c := moduleCallCost(len(chunk), len(mergeFees(chunk)), spec.gasPerOrder())
	if side == domain.SideOffer {
		c = c.add(itemCost(len(chunk)))
		if sellsOut(currency, opts) {
			c = c.add(swapCost(1))
		}
		return c
	}
	pay := opts.DesiredCurrency
	if pay != currency {
		c = c.add(swapCost(1))
	}
	if !domain.IsNative(pay) {
		c = c.add(p.pullCost(pay, opts))
	}
	return c
}

// mergeFees sums fees per recipient, keeping first-appearance order.
func mergeFees(chunk []item) []domain.Fee {
	var out []domain.Fee
	pos := make(map[common.Address]int)
	for _, it := range chunk {
		for _, f := range it.fees {
			if i, ok := pos[f.Recipient]; ok {
				out[i].Amount.Add(out[i].Amount, f.Amount)
				continue
			}
			pos[f.Recipient] = len(out)
			out = append(out, domain.Fee{Recipient: f.Recipient, Amount: new(big.Int).Set(f.Amount)})
		}
	}
	return out
}

func ordersOf(chunk []item) []domain.Order {
	out := make([]domain.Order, len(chunk))
	for i, it := range chunk {
		out[i] = it.order
	}
	return out
}

func newUnit(chunk []item) *unit {
	return &unit{
		protocol: chunk[0].protocol,
		currency: chunk[0].currency,
		items:    chunk,
	}
}

func (p *Planner) listingUnit(ctx context.Context, chunk []item, taker common.Address, opts domain.Options) (*unit, error) {
	spec := chunk[0].spec
	currency := chunk[0].currency
	orders := ordersOf(chunk)
	fees := mergeFees(chunk)
	amount := domain.SumPrices(orders)
	need := new(big.Int).Add(amount, domain.SumFees(fees))

	params := domain.FillParams{
		FillTo:             taker,
		RefundTo:           taker,
		RevertIfIncomplete: !opts.Partial,
		Amount:             amount,
		Token:              currency,
	}
	var (
		call []byte
		err  error
	)
	switch {
	case domain.IsNative(currency) && len(orders) == 1:
		call, err = codec.EncodeAcceptETHListing(orders[0], params, fees)
	case domain.IsNative(currency):
		call, err = codec.EncodeAcceptETHListings(orders, params, fees)
	default:
		call, err = codec.EncodeAcceptERC20Listings(orders, params, fees)
	}
	if err != nil {
		return nil, fmt.Errorf("encode module call: %w", err)
	}

	u := newUnit(chunk)
	moduleValue := new(big.Int)
	pay := opts.DesiredCurrency
	switch {
	case pay == currency && domain.IsNative(currency):
		moduleValue.Set(need)
	case pay == currency:
		u.ft = &pull{token: currency, amount: need, to: spec.Address}
	default:
		swap, err := p.swapExactOut(ctx, opts, pay, currency, need, spec.Address, taker)
		if err != nil {
			return nil, err
		}
		u.execs = append(u.execs, swap.exec)
		if !domain.IsNative(pay) {
			u.ft = &pull{token: pay, amount: swap.maxIn, to: swap.adapter}
		}
	}
	u.execs = append(u.execs, domain.Execution{Target: spec.Address, Data: call, Value: moduleValue})
	u.preSigs = preSignatures(spec, chunk, taker)
	u.cost = p.shapeCost(chunk, opts, domain.SideListing)
	return u, nil
}

func (p *Planner) offerUnit(ctx context.Context, chunk []item, taker common.Address, opts domain.Options) (*unit, error) {
	spec := chunk[0].spec
	currency := chunk[0].currency
	orders := ordersOf(chunk)
	fees := mergeFees(chunk)

	fillTo := taker
	var swapExec *domain.Execution
	if sellsOut(currency, opts) {
		// An exact-output conversion sized for every offer reverts when
		// any offer is skipped, so partial fills cannot sell out.
		if opts.Partial {
			return nil, fmt.Errorf("%w: partial fills cannot sell out of %s", domain.ErrUnresolvableSwap, currency.Hex())
		}
		proceeds := offerProceeds(orders, fees)
		if proceeds.Sign() <= 0 {
			return nil, fmt.Errorf("%w: fees consume the offer proceeds", domain.ErrUnresolvableSwap)
		}
		out := *opts.SellOutCurrency
		provider, adapter, err := p.adapter(opts)
		if err != nil {
			return nil, err
		}
		slip := p.slippage(opts)
		if slip >= 10_000 {
			return nil, fmt.Errorf("%w: slippage %d bps", domain.ErrUnresolvableSwap, slip)
		}
		converted, err := p.quoteIn(ctx, provider, currency, out, proceeds)
		if err != nil {
			return nil, err
		}
		amountOut := domain.MulBps(converted, 10_000-slip)
		if amountOut.Sign() <= 0 {
			return nil, fmt.Errorf("%w: proceeds too small to convert", domain.ErrUnresolvableSwap)
		}
		data, err := codec.EncodeConvertExactOutput([]codec.SwapLeg{{
			TokenIn:        currency,
			TokenOut:       out,
			MaxAmountIn:    proceeds,
			ExactAmountOut: amountOut,
			Recipients:     []codec.FeeArg{{Recipient: taker, Amount: amountOut}},
		}}, taker, false)
		if err != nil {
			return nil, fmt.Errorf("encode swap: %w", err)
		}
		swapExec = &domain.Execution{Target: adapter, Data: data, Value: new(big.Int)}
		fillTo = adapter
	}

	call, err := codec.EncodeAcceptOffers(orders, domain.OfferParams{
		FillTo:             fillTo,
		RefundTo:           taker,
		RevertIfIncomplete: !opts.Partial,
	}, fees)
	if err != nil {
		return nil, fmt.Errorf("encode module call: %w", err)
	}

	u := newUnit(chunk)
	u.execs = append(u.execs, domain.Execution{Target: spec.Address, Data: call, Value: new(big.Int)})
	if swapExec != nil {
		u.execs = append(u.execs, *swapExec)
	}
	u.nftTo = spec.Address
	seen := make(map[common.Address]bool)
	for _, o := range orders {
		u.nfts = append(u.nfts, codec.TransferItem{
			ItemType:   itemType(o.Kind),
			Token:      o.Collection,
			Identifier: o.TokenID,
			Amount:     o.Amount,
		})
		if !seen[o.Collection] {
			seen[o.Collection] = true
			u.collections = append(u.collections, collectionRef{address: o.Collection, kind: o.Kind})
		}
	}
	u.preSigs = preSignatures(spec, chunk, taker)
	u.cost = p.shapeCost(chunk, opts, domain.SideOffer)
	return u, nil
}

// offerProceeds is what the module receives if every offer fills, net of
// marketplace fees and the flat fees it pays out.
func offerProceeds(orders []domain.Order, fees []domain.Fee) *big.Int {
	total := new(big.Int)
	for _, o := range orders {
		total.Add(total, o.Price)
		total.Sub(total, domain.MulBps(o.Price, uint64(o.MarketplaceFeeBps)))
	}
	return total.Sub(total, domain.SumFees(fees))
}

func itemType(k domain.ContractKind) uint8 {
	if k == domain.ContractERC1155 {
		return codec.ItemERC1155
	}
	return codec.ItemERC721
}

func preSignatures(spec ModuleSpec, chunk []item, taker common.Address) []domain.PreSignatureRequest {
	if !spec.RequiresTakerSignature {
		return nil
	}
	out := make([]domain.PreSignatureRequest, len(chunk))
	for i, it := range chunk {
		out[i] = domain.PreSignatureRequest{
			Kind:    domain.PreSignatureTakerAuth,
			Signer:  taker,
			OrderID: it.id,
			Message: fmt.Sprintf("Authorize %s fill of order %s", spec.Kind, codec.OrderHash(it.order).Hex()),
		}
	}
	return out
}

type swapStep struct {
	exec    domain.Execution
	maxIn   *big.Int
	adapter common.Address
}

func (p *Planner) adapter(opts domain.Options) (domain.SwapProvider, common.Address, error) {
	provider := opts.SwapProvider
	if provider == "" {
		provider = domain.SwapUniswapV3
	}
	adapter, ok := p.cfg.SwapAdapters[provider]
	if !ok {
		return "", common.Address{}, fmt.Errorf("%w: no %s swap adapter configured", domain.ErrUnresolvableSwap, provider)
	}
	return provider, adapter, nil
}

func (p *Planner) quote(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	if p.quoter == nil {
		return nil, fmt.Errorf("%w: no quoter configured", domain.ErrUnresolvableSwap)
	}
	q, err := p.quoter.QuoteExactOutput(ctx, provider, tokenIn, tokenOut, amountOut)
	if err != nil {
		return nil, fmt.Errorf("%w: quote %s -> %s: %w", domain.ErrUnresolvableSwap, tokenIn.Hex(), tokenOut.Hex(), err)
	}
	if q == nil || q.Sign() <= 0 {
		return nil, fmt.Errorf("%w: empty quote %s -> %s", domain.ErrUnresolvableSwap, tokenIn.Hex(), tokenOut.Hex())
	}
	return q, nil
}

func (p *Planner) quoteIn(ctx context.Context, provider domain.SwapProvider, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if p.quoter == nil {
		return nil, fmt.Errorf("%w: no quoter configured", domain.ErrUnresolvableSwap)
	}
	q, err := p.quoter.QuoteExactInput(ctx, provider, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: quote %s -> %s: %w", domain.ErrUnresolvableSwap, tokenIn.Hex(), tokenOut.Hex(), err)
	}
	if q == nil || q.Sign() <= 0 {
		return nil, fmt.Errorf("%w: empty quote %s -> %s", domain.ErrUnresolvableSwap, tokenIn.Hex(), tokenOut.Hex())
	}
	return q, nil
}

// swapExactOut buys exactly amountOut of tokenOut for recipient, refunding
// unspent input to refundTo.
func (p *Planner) swapExactOut(ctx context.Context, opts domain.Options, tokenIn, tokenOut common.Address, amountOut *big.Int, recipient, refundTo common.Address) (swapStep, error) {
	provider, adapter, err := p.adapter(opts)
	if err != nil {
		return swapStep{}, err
	}
	q, err := p.quote(ctx, provider, tokenIn, tokenOut, amountOut)
	if err != nil {
		return swapStep{}, err
	}
	maxIn := domain.AddBps(q, p.slippage(opts))
	data, err := codec.EncodeConvertExactOutput([]codec.SwapLeg{{
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		MaxAmountIn:    maxIn,
		ExactAmountOut: amountOut,
		Recipients:     []codec.FeeArg{{Recipient: recipient, Amount: amountOut}},
	}}, refundTo, false)
	if err != nil {
		return swapStep{}, fmt.Errorf("encode swap: %w", err)
	}
	value := new(big.Int)
	if domain.IsNative(tokenIn) {
		value.Set(maxIn)
	}
	return swapStep{
		exec:    domain.Execution{Target: adapter, Data: data, Value: value},
		maxIn:   maxIn,
		adapter: adapter,
	}, nil
}
