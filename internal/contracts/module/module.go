// Package module implements the per-protocol fill-batch contract.
//
// A Module wraps one exchange behind the uniform accept* entry points. Every
// call runs the same state machine: each order goes PENDING -> ATTEMPTING ->
// FILLED or SKIPPED, then fees are scaled by what actually filled, the
// remaining settlement asset is refunded and the batch is SETTLED with the
// module holding nothing.
package module

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// FillReportEvent is the log event carrying a domain.FillLog.
const FillReportEvent = "FillReport"

// Protocol describes the exchange a module talks to.
type Protocol struct {
	Kind     domain.ProtocolKind
	Exchange common.Address
	// DeliversToRecipient is false for exchanges that hand the purchased
	// asset (or offer proceeds) to the caller; the module forwards it.
	DeliversToRecipient bool
	// ApprovalTarget pulls ERC-20 payments. Zero means Exchange.
	ApprovalTarget common.Address
}

func (p Protocol) approvalTarget() common.Address {
	if p.ApprovalTarget == (common.Address{}) {
		return p.Exchange
	}
	return p.ApprovalTarget
}

// Module is the fill-batch contract for one protocol.
type Module struct {
	name  string
	proto Protocol
}

// New returns module code for proto.
func New(name string, proto Protocol) *Module {
	return &Module{name: name, proto: proto}
}

func (m *Module) Name() string { return m.name }

// Protocol returns the descriptor the module was built with.
func (m *Module) Protocol() Protocol { return m.proto }

var lockSlot = crypto.Keccak256Hash([]byte("module.reentrancy"))

func (m *Module) Call(env *chain.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		// Native arriving from a swap adapter or an exchange.
		return nil, nil
	}
	method, data, err := codec.Method(codec.ModuleABI, input)
	if err != nil {
		return nil, err
	}

	if env.Load(lockSlot) != (common.Hash{}) {
		return nil, fmt.Errorf("%s.%s: %w", m.name, method.Name, domain.ErrReentrant)
	}
	env.Store(lockSlot, common.BigToHash(big.NewInt(1)))

	switch method.Name {
	case "acceptETHListings", "acceptERC20Listings":
		var call codec.ListingsCall
		if err := codec.Unpack(method, data, &call); err != nil {
			return nil, err
		}
		err = m.acceptListings(env, method.Name == "acceptETHListings", call.Orders, call.Params.ToDomain(), codec.ToDomainFees(call.Fees))
	case "acceptETHListing":
		var call codec.ListingCall
		if err := codec.Unpack(method, data, &call); err != nil {
			return nil, err
		}
		err = m.acceptListings(env, true, []codec.OrderArg{call.Order}, call.Params.ToDomain(), codec.ToDomainFees(call.Fees))
	case "acceptOffers":
		var call codec.OffersCall
		if err := codec.Unpack(method, data, &call); err != nil {
			return nil, err
		}
		p := domain.OfferParams{
			FillTo:             call.Params.FillTo,
			RefundTo:           call.Params.RefundTo,
			RevertIfIncomplete: call.Params.RevertIfIncomplete,
		}
		err = m.acceptOffers(env, call.Orders, p, codec.ToDomainFees(call.Fees))
	default:
		err = fmt.Errorf("%w: %s", domain.ErrUnknownMethod, method.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", m.name, method.Name, err)
	}

	env.Store(lockSlot, common.Hash{})
	return nil, nil
}

// attempt runs fill for one order inside its own snapshot. With
// revertIfIncomplete the failure is returned; otherwise the order is skipped
// with every side effect of the attempt undone.
func (m *Module) attempt(env *chain.Env, i int, o domain.Order, revertIfIncomplete bool, fill func() error) (bool, error) {
	hash := codec.OrderHash(o).Hex()
	snap := env.Snapshot()

	err := fill()
	if err == nil {
		env.Emit(FillReportEvent, domain.FillLog{Module: m.name, OrderHash: hash, Filled: true})
		return true, nil
	}
	if revertIfIncomplete {
		return false, fmt.Errorf("order %d: %w: %w", i, domain.ErrIncomplete, err)
	}

	env.Revert(snap)
	if domain.IsOrderLevel(err) {
		slog.Debug("module: order skipped", "module", m.name, "order", hash, "err", err)
	} else {
		slog.Warn("module: order skipped on a non-order failure", "module", m.name, "order", hash, "class", domain.ErrorClass(err), "err", err)
	}
	env.Emit(FillReportEvent, domain.FillLog{Module: m.name, OrderHash: hash, Filled: false, Reason: err.Error()})
	return false, nil
}

func (m *Module) acceptListings(env *chain.Env, native bool, args []codec.OrderArg, p domain.FillParams, fees []domain.Fee) error {
	orders := make([]domain.Order, len(args))
	for i, a := range args {
		orders[i] = a.ToDomain()
	}

	token := p.Token
	if native {
		token = domain.NativeCurrency
	} else if env.Value.Sign() != 0 {
		return fmt.Errorf("%w: native sent to an erc20 entry point", domain.ErrBadPayment)
	} else if domain.IsNative(token) {
		return fmt.Errorf("%w: erc20 entry point without a token", domain.ErrBadPayment)
	}

	amount := p.Amount
	if amount == nil || amount.Sign() == 0 {
		amount = domain.SumPrices(orders)
	}

	// PENDING: the settlement asset for the whole batch must be here.
	need := new(big.Int).Add(amount, domain.SumFees(fees))
	if have := m.balance(env, token); have.Cmp(need) < 0 {
		sentinel := domain.ErrInsufficientBalance
		if native {
			sentinel = domain.ErrInsufficientValue
		}
		return fmt.Errorf("%w: holds %s, batch needs %s", sentinel, have, need)
	}

	filled := new(big.Int)
	for i, o := range orders {
		if o.Currency != token {
			if p.RevertIfIncomplete {
				return fmt.Errorf("order %d: %w: currency %s in a %s batch", i, domain.ErrBadPayment, o.Currency.Hex(), token.Hex())
			}
			env.Emit(FillReportEvent, domain.FillLog{Module: m.name, OrderHash: codec.OrderHash(o).Hex(), Reason: "currency mismatch"})
			continue
		}
		ok, err := m.attempt(env, i, o, p.RevertIfIncomplete, func() error {
			return m.buy(env, o, p.FillTo)
		})
		if err != nil {
			return err
		}
		if ok {
			filled.Add(filled, o.Price)
		}
	}

	if err := m.payFees(env, token, fees, filled, amount); err != nil {
		return err
	}
	return m.sweep(env, token, p.RefundTo)
}

// buy fills one listing and makes sure the asset ends up with fillTo.
func (m *Module) buy(env *chain.Env, o domain.Order, fillTo common.Address) error {
	recipient := fillTo
	if !m.proto.DeliversToRecipient {
		recipient = env.Self
	}
	data, err := codec.EncodeFill(o, recipient)
	if err != nil {
		return err
	}

	value := new(big.Int)
	if domain.IsNative(o.Currency) {
		value = o.Price
	} else if err := chain.EnsureERC20Allowance(env, o.Currency, m.proto.approvalTarget(), o.Price); err != nil {
		return err
	}
	if _, err := env.Call(m.proto.Exchange, value, data); err != nil {
		return err
	}

	if recipient == env.Self {
		return chain.NFTTransferFrom(env, o.Kind, o.Collection, env.Self, fillTo, o.TokenID, o.Amount)
	}
	return nil
}

func (m *Module) acceptOffers(env *chain.Env, args []codec.OrderArg, p domain.OfferParams, fees []domain.Fee) error {
	if env.Value.Sign() != 0 {
		return fmt.Errorf("%w: offers take no native value", domain.ErrBadPayment)
	}
	if len(args) == 0 {
		return nil
	}
	orders := make([]domain.Order, len(args))
	for i, a := range args {
		orders[i] = a.ToDomain()
	}
	currency := orders[0].Currency
	amount := domain.SumPrices(orders)

	filled := new(big.Int)
	for i, o := range orders {
		if o.Currency != currency {
			return fmt.Errorf("order %d: %w: mixed offer currencies", i, domain.ErrBadPayment)
		}
		ok, err := m.attempt(env, i, o, p.RevertIfIncomplete, func() error {
			return m.sell(env, o)
		})
		if err != nil {
			return err
		}
		if ok {
			filled.Add(filled, o.Price)
			continue
		}
		// SKIPPED: the asset the owner put in goes back untouched.
		if err := chain.NFTTransferFrom(env, o.Kind, o.Collection, env.Self, p.RefundTo, o.TokenID, o.Amount); err != nil {
			return fmt.Errorf("order %d: return asset: %w", i, err)
		}
	}

	if err := m.payFees(env, currency, fees, filled, amount); err != nil {
		return err
	}
	return m.sweep(env, currency, p.FillTo)
}

// sell accepts one offer with an asset the module holds. Proceeds always
// come back to the module so fees can be taken before forwarding.
func (m *Module) sell(env *chain.Env, o domain.Order) error {
	if !env.IsApprovedForAll(o.Collection, env.Self, m.proto.Exchange) {
		data, err := codec.EncodeSetApprovalForAll(o.Kind, m.proto.Exchange, true)
		if err != nil {
			return err
		}
		if _, err := env.Call(o.Collection, nil, data); err != nil {
			return err
		}
	}
	data, err := codec.EncodeFill(o, env.Self)
	if err != nil {
		return err
	}
	_, err = env.Call(m.proto.Exchange, nil, data)
	return err
}

// payFees pays floor(fee * filled / amount) of every requested fee. The
// truncated remainder stays in the module and is swept with the refund.
func (m *Module) payFees(env *chain.Env, token common.Address, fees []domain.Fee, filled, amount *big.Int) error {
	for j, f := range fees {
		paid := domain.ScaleFee(f.Amount, filled, amount)
		if paid.Sign() == 0 {
			continue
		}
		var err error
		if domain.IsNative(token) {
			err = chain.SendNative(env, f.Recipient, paid)
		} else {
			err = chain.ERC20Transfer(env, token, f.Recipient, paid)
		}
		if err != nil {
			return fmt.Errorf("fee %d: %w: %w", j, domain.ErrFeeTransfer, err)
		}
	}
	return nil
}

// sweep sends every unit of token and of the native asset the module still
// holds to to. SETTLED is reached once this returns.
func (m *Module) sweep(env *chain.Env, token, to common.Address) error {
	if !domain.IsNative(token) {
		if bal := env.ERC20Balance(token, env.Self); bal.Sign() > 0 {
			if err := chain.ERC20Transfer(env, token, to, bal); err != nil {
				return fmt.Errorf("refund: %w", err)
			}
		}
	}
	if bal := env.NativeBalance(env.Self); bal.Sign() > 0 {
		if err := chain.SendNative(env, to, bal); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
	}
	return nil
}

func (m *Module) balance(env *chain.Env, token common.Address) *big.Int {
	if domain.IsNative(token) {
		return env.NativeBalance(env.Self)
	}
	return env.ERC20Balance(token, env.Self)
}
