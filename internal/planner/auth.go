package planner

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

const queryConcurrency = 8

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type allowanceKey struct {
	token   common.Address
	spender common.Address
}

type operatorKey struct {
	collection common.Address
	operator   common.Address
}

// authState is a snapshot of the owner's on-chain authorizations.
type authState struct {
	allowance map[allowanceKey]*big.Int
	approved  map[operatorKey]bool
	nonces    map[common.Address]*big.Int
}

func (p *Planner) chooseEntry(u *unit, opts domain.Options) {
	switch {
	case u.ft != nil && p.usesPermit(u.ft.token, opts):
		u.entry = domain.EntryPermitProxy
	case u.ft != nil || len(u.nfts) > 0:
		u.entry = domain.EntryApprovalProxy
	default:
		u.entry = domain.EntryRouter
	}
}

// spender is the contract that moves the unit's ERC-20 out of the owner's wallet.
func (p *Planner) spender(u *unit) common.Address {
	if u.entry == domain.EntryPermitProxy {
		return p.cfg.PermitProxy
	}
	return p.cfg.ApprovalProxy
}

// resolveAuth queries every allowance, operator approval and permit nonce
// the units depend on.
func (p *Planner) resolveAuth(ctx context.Context, units []*unit, owner common.Address) (*authState, error) {
	st := &authState{
		allowance: make(map[allowanceKey]*big.Int),
		approved:  make(map[operatorKey]bool),
		nonces:    make(map[common.Address]*big.Int),
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryConcurrency)

	seenAllowance := make(map[allowanceKey]bool)
	seenOperator := make(map[operatorKey]bool)
	seenNonce := make(map[common.Address]bool)
	for _, u := range units {
		if u.ft != nil {
			k := allowanceKey{token: u.ft.token, spender: p.spender(u)}
			if !seenAllowance[k] {
				seenAllowance[k] = true
				g.Go(func() error {
					a, err := p.allowances.ERC20Allowance(gctx, k.token, owner, k.spender)
					if err != nil {
						return fmt.Errorf("allowance of %s for %s: %w", k.token.Hex(), k.spender.Hex(), err)
					}
					mu.Lock()
					st.allowance[k] = a
					mu.Unlock()
					return nil
				})
			}
			if token := u.ft.token; u.entry == domain.EntryPermitProxy && !seenNonce[token] {
				seenNonce[token] = true
				g.Go(func() error {
					n, err := p.allowances.PermitNonce(gctx, p.cfg.PermitProxy, owner, token)
					if err != nil {
						return fmt.Errorf("permit nonce of %s: %w", token.Hex(), err)
					}
					mu.Lock()
					st.nonces[token] = n
					mu.Unlock()
					return nil
				})
			}
		}
		for _, c := range u.collections {
			k := operatorKey{collection: c.address, operator: p.cfg.ApprovalProxy}
			if seenOperator[k] {
				continue
			}
			seenOperator[k] = true
			g.Go(func() error {
				ok, err := p.allowances.IsApprovedForAll(gctx, k.collection, owner, k.operator)
				if err != nil {
					return fmt.Errorf("operator approval of %s: %w", k.collection.Hex(), err)
				}
				mu.Lock()
				st.approved[k] = ok
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

// approvalNeeds lists, per unit, the approvals missing for it to execute.
// ERC-20 allowances are compared against the total all units pull.
func (p *Planner) approvalNeeds(units []*unit, st *authState, owner common.Address) (map[*unit][]domain.Approval, error) {
	required := make(map[allowanceKey]*big.Int)
	for _, u := range units {
		if u.ft == nil {
			continue
		}
		k := allowanceKey{token: u.ft.token, spender: p.spender(u)}
		if required[k] == nil {
			required[k] = new(big.Int)
		}
		required[k].Add(required[k], u.ft.amount)
	}

	out := make(map[*unit][]domain.Approval)
	for _, u := range units {
		if u.ft != nil {
			k := allowanceKey{token: u.ft.token, spender: p.spender(u)}
			if have := st.allowance[k]; have == nil || have.Cmp(required[k]) < 0 {
				data, err := codec.EncodeERC20Approve(k.spender, maxUint256)
				if err != nil {
					return nil, fmt.Errorf("encode approve: %w", err)
				}
				out[u] = append(out[u], domain.Approval{
					Owner:   owner,
					Token:   k.token,
					Spender: k.spender,
					Kind:    domain.ApprovalERC20,
					TxData:  domain.TxData{From: owner, To: k.token, Data: data, Value: new(big.Int)},
				})
			}
		}
		for _, c := range u.collections {
			k := operatorKey{collection: c.address, operator: p.cfg.ApprovalProxy}
			if st.approved[k] {
				continue
			}
			data, err := codec.EncodeSetApprovalForAll(c.kind, k.operator, true)
			if err != nil {
				return nil, fmt.Errorf("encode setApprovalForAll: %w", err)
			}
			out[u] = append(out[u], domain.Approval{
				Owner:   owner,
				Token:   c.address,
				Spender: k.operator,
				Kind:    domain.ApprovalForAll,
				TxData:  domain.TxData{From: owner, To: c.address, Data: data, Value: new(big.Int)},
			})
		}
	}
	return out, nil
}

func approvalKey(a domain.Approval) string {
	return string(a.Kind) + "/" + a.Token.Hex() + "/" + a.Spender.Hex()
}
