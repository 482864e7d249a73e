// Package exchange is a reference orderbook marketplace. Modules call it the
// way they call any third-party exchange: with a normalized order and a
// recipient, expecting it to fully fill or revert.
package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Filled is the event data emitted for each filled order.
type Filled struct {
	OrderHash common.Hash
	Maker     common.Address
	Taker     common.Address
	Price     *big.Int
}

// Exchange settles listings and offers. When deliverToCaller is set the
// purchased asset (or offer proceeds) goes to the caller instead of the
// recipient argument, like protocols that cannot route to a third party.
type Exchange struct {
	name            string
	deliverToCaller bool
}

// New returns exchange code that delivers to the given recipient.
func New(name string) *Exchange {
	return &Exchange{name: name}
}

// NewDeliverToCaller returns exchange code that always delivers to msg.sender.
func NewDeliverToCaller(name string) *Exchange {
	return &Exchange{name: name, deliverToCaller: true}
}

func (x *Exchange) Name() string { return x.name }

func (x *Exchange) Call(env *chain.Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.ExchangeABI, input)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "fill":
		var call codec.FillCall
		if err := codec.Unpack(m, data, &call); err != nil {
			return nil, err
		}
		return nil, x.fill(env, call.Order.ToDomain(), call.Recipient)

	case "cancel":
		var call codec.CancelCall
		if err := codec.Unpack(m, data, &call); err != nil {
			return nil, err
		}
		o := call.Order.ToDomain()
		if env.Caller != o.Maker {
			return nil, fmt.Errorf("%s.cancel: %w: only the maker can cancel", x.name, domain.ErrNotOwner)
		}
		env.Store(slot("cancelled", codec.OrderHash(o)), flag)
		return nil, nil

	case "status":
		args, err := m.Inputs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%s.status: %w", x.name, err)
		}
		h := common.Hash(args[0].([32]byte))
		return m.Outputs.Pack(env.Load(slot("filled", h)) == flag, env.Load(slot("cancelled", h)) == flag)
	}
	return nil, fmt.Errorf("%s: %w: %s", x.name, domain.ErrUnknownMethod, m.Name)
}

var flag = common.BigToHash(big.NewInt(1))

func slot(kind string, orderHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte(kind), orderHash.Bytes())
}

func (x *Exchange) fill(env *chain.Env, o domain.Order, recipient common.Address) error {
	hash := codec.OrderHash(o)

	switch {
	case o.Maker == (common.Address{}):
		return fmt.Errorf("%s.fill: %w", x.name, domain.ErrBadOrderSig)
	case env.Load(slot("cancelled", hash)) == flag:
		return fmt.Errorf("%s.fill: %w: %s", x.name, domain.ErrOrderCancelled, hash.Hex())
	case env.Load(slot("filled", hash)) == flag:
		return fmt.Errorf("%s.fill: %w: %s", x.name, domain.ErrOrderFilled, hash.Hex())
	case o.Expiry != 0 && o.Expiry < env.Time():
		return fmt.Errorf("%s.fill: %w: expired at %d", x.name, domain.ErrOrderExpired, o.Expiry)
	}
	if x.deliverToCaller {
		recipient = env.Caller
	}
	env.Store(slot("filled", hash), flag)

	var err error
	if o.Side == domain.SideOffer {
		err = x.acceptOffer(env, o, recipient)
	} else {
		err = x.buyListing(env, o, recipient)
	}
	if err != nil {
		return fmt.Errorf("%s.fill: %w", x.name, err)
	}

	env.Emit("OrderFilled", Filled{OrderHash: hash, Maker: o.Maker, Taker: env.Caller, Price: o.Price})
	return nil
}

func (x *Exchange) buyListing(env *chain.Env, o domain.Order, recipient common.Address) error {
	units := units(o)
	if chain.NFTBalance(env, o.Kind, o.Collection, o.TokenID, o.Maker).Cmp(units) < 0 {
		return fmt.Errorf("%w: maker no longer holds %s#%s", domain.ErrNotOwner, o.Collection.Hex(), o.TokenID)
	}

	if domain.IsNative(o.Currency) {
		if env.Value.Cmp(o.Price) != 0 {
			return fmt.Errorf("%w: sent %s, price %s", domain.ErrBadPayment, env.Value, o.Price)
		}
	} else {
		if env.Value.Sign() != 0 {
			return fmt.Errorf("%w: native sent for an erc20 order", domain.ErrBadPayment)
		}
		if err := chain.ERC20TransferFrom(env, o.Currency, env.Caller, env.Self, o.Price); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrBadPayment, err)
		}
	}

	if err := x.payout(env, o, o.Maker); err != nil {
		return err
	}
	return chain.NFTTransferFrom(env, o.Kind, o.Collection, o.Maker, recipient, o.TokenID, units)
}

func (x *Exchange) acceptOffer(env *chain.Env, o domain.Order, recipient common.Address) error {
	if domain.IsNative(o.Currency) || env.Value.Sign() != 0 {
		return fmt.Errorf("%w: offers settle in erc20 only", domain.ErrBadPayment)
	}
	if err := chain.NFTTransferFrom(env, o.Kind, o.Collection, env.Caller, o.Maker, o.TokenID, units(o)); err != nil {
		return err
	}
	if err := chain.ERC20TransferFrom(env, o.Currency, o.Maker, env.Self, o.Price); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBadPayment, err)
	}
	return x.payout(env, o, recipient)
}

// payout splits the price held by the exchange between the marketplace fee
// recipient and seller.
func (x *Exchange) payout(env *chain.Env, o domain.Order, seller common.Address) error {
	fee := domain.MulBps(o.Price, uint64(o.MarketplaceFeeBps))
	rest := new(big.Int).Sub(o.Price, fee)
	if domain.IsNative(o.Currency) {
		if err := chain.SendNative(env, o.MarketplaceFeeRecipient, fee); err != nil {
			return err
		}
		return chain.SendNative(env, seller, rest)
	}
	if err := chain.ERC20Transfer(env, o.Currency, o.MarketplaceFeeRecipient, fee); err != nil {
		return err
	}
	return chain.ERC20Transfer(env, o.Currency, seller, rest)
}

func units(o domain.Order) *big.Int {
	if o.Amount == nil || o.Amount.Sign() == 0 {
		return big.NewInt(1)
	}
	return o.Amount
}
