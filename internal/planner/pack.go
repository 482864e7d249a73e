package planner

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

var planNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("nftagg/transaction-plan"))

type permitSlot struct {
	token     common.Address
	recipient common.Address
	amount    *big.Int
	nonce     *big.Int
}

type txBuilder struct {
	entry     domain.EntryKind
	recipient common.Address
	units     []*unit
	permits   []*permitSlot
	cost      cost
}

func (t *txBuilder) permitFor(token common.Address) *permitSlot {
	for _, s := range t.permits {
		if s.token == token {
			return s
		}
	}
	return nil
}

type planBuilder struct {
	preTxs []domain.Approval
	txs    []*txBuilder
}

func (b *planBuilder) usesPermit(token common.Address) bool {
	for _, tx := range b.txs {
		if tx.permitFor(token) != nil {
			return true
		}
	}
	return false
}

// pack assigns units to transactions first-fit on the open transaction and
// transactions to plans.
func (p *Planner) pack(units []*unit, st *authState, owner common.Address, opts domain.Options) ([]domain.TransactionPlan, error) {
	needs, err := p.approvalNeeds(units, st, owner)
	if err != nil {
		return nil, err
	}
	nonces := make(map[common.Address]*big.Int, len(st.nonces))
	for t, n := range st.nonces {
		nonces[t] = new(big.Int).Set(n)
	}

	plans := []*planBuilder{{}}
	emitted := make(map[string]bool)
	var cur *txBuilder
	for _, u := range units {
		plan := plans[len(plans)-1]
		if cur == nil || !p.tryAdd(plan, cur, u, nonces) {
			if u.entry == domain.EntryPermitProxy && plan.usesPermit(u.ft.token) {
				plan = &planBuilder{}
				plans = append(plans, plan)
			}
			cur = &txBuilder{entry: domain.EntryRouter, cost: entryCost()}
			plan.txs = append(plan.txs, cur)
			if !p.tryAdd(plan, cur, u, nonces) {
				return nil, fmt.Errorf("%w: %s batch does not fit an empty transaction", domain.ErrNoViableGrouping, u.protocol)
			}
		}
		for _, a := range needs[u] {
			k := approvalKey(a)
			if emitted[k] {
				continue
			}
			emitted[k] = true
			plan.preTxs = append(plan.preTxs, a)
		}
	}

	deadline := opts.PermitDeadline
	if deadline == 0 {
		deadline = uint64(p.cfg.Now().Add(p.cfg.PermitTTL).Unix())
	}

	out := make([]domain.TransactionPlan, 0, len(plans))
	for _, b := range plans {
		plan := domain.TransactionPlan{PreTxs: b.preTxs}
		for _, tb := range b.txs {
			tx, err := p.buildTx(tb, needs, owner, opts, deadline)
			if err != nil {
				return nil, err
			}
			plan.Txs = append(plan.Txs, tx)
		}
		plan.ID = PlanID(plan)
		out = append(out, plan)
	}
	return out, nil
}

// conflicts reports whether u pulls an ERC-20 that tx already pulls, or into
// a contract that already receives one. Every recipient sweeps its whole
// balance when its call returns, so a second pre-funded call would find
// nothing left.
func (t *txBuilder) conflicts(u *unit) bool {
	if u.ft == nil {
		return false
	}
	for _, o := range t.units {
		if o.ft != nil && (o.ft.token == u.ft.token || o.ft.to == u.ft.to) {
			return true
		}
	}
	return false
}

// tryAdd puts u into tx when the entries are compatible and the ceilings hold.
func (p *Planner) tryAdd(plan *planBuilder, tx *txBuilder, u *unit, nonces map[common.Address]*big.Int) bool {
	switch u.entry {
	case domain.EntryApprovalProxy:
		switch tx.entry {
		case domain.EntryPermitProxy:
			return false
		case domain.EntryApprovalProxy:
			if tx.recipient != u.recipient() {
				return false
			}
		}
	case domain.EntryPermitProxy:
		if tx.entry == domain.EntryApprovalProxy || plan.usesPermit(u.ft.token) {
			return false
		}
	}
	c := tx.cost.add(u.cost)
	if tx.conflicts(u) || !p.fits(c) {
		return false
	}

	tx.cost = c
	tx.units = append(tx.units, u)
	if tx.entry == domain.EntryRouter && u.entry != domain.EntryRouter {
		tx.entry = u.entry
		if u.entry == domain.EntryApprovalProxy {
			tx.recipient = u.recipient()
		}
	}
	if u.entry == domain.EntryPermitProxy {
		n := nonces[u.ft.token]
		if n == nil {
			n = new(big.Int)
		}
		tx.permits = append(tx.permits, &permitSlot{
			token:     u.ft.token,
			recipient: u.ft.to,
			amount:    new(big.Int).Set(u.ft.amount),
			nonce:     new(big.Int).Set(n),
		})
		nonces[u.ft.token] = new(big.Int).Add(n, big.NewInt(1))
	}
	return true
}

func (p *Planner) buildTx(tb *txBuilder, needs map[*unit][]domain.Approval, owner common.Address, opts domain.Options, deadline uint64) (domain.Transaction, error) {
	tx := domain.Transaction{
		Entry:       tb.entry,
		Source:      opts.Source,
		GasEstimate: tb.cost.gas,
	}
	var items []codec.TransferItem
	seen := make(map[string]bool)
	for _, u := range tb.units {
		tx.Executions = append(tx.Executions, u.execs...)
		tx.PreSignatures = append(tx.PreSignatures, u.preSigs...)
		for _, it := range u.items {
			tx.Orders = append(tx.Orders, it.id)
			tx.OrderHashes = append(tx.OrderHashes, codec.OrderHash(it.order).Hex())
		}
		if tb.entry == domain.EntryApprovalProxy {
			if u.ft != nil {
				items = append(items, codec.TransferItem{
					ItemType:   codec.ItemERC20,
					Token:      u.ft.token,
					Identifier: new(big.Int),
					Amount:     u.ft.amount,
				})
			}
			items = append(items, u.nfts...)
		}
		for _, a := range needs[u] {
			k := approvalKey(a)
			if seen[k] {
				continue
			}
			seen[k] = true
			if a.Kind == domain.ApprovalERC20 {
				tx.FTApprovals = append(tx.FTApprovals, a)
			} else {
				tx.Approvals = append(tx.Approvals, a)
			}
		}
	}

	var witness common.Hash
	if len(tb.permits) > 0 {
		w, err := codec.ExecutionsWitness(tx.Executions)
		if err != nil {
			return domain.Transaction{}, err
		}
		witness = w
	}
	for _, s := range tb.permits {
		arg := codec.PermitArg{
			Owner:     owner,
			Token:     s.token,
			Amount:    s.amount,
			Recipient: s.recipient,
			Nonce:     s.nonce,
			Deadline:  new(big.Int).SetUint64(deadline),
		}
		tx.Permits = append(tx.Permits, domain.PermitRequest{
			ID:        uuid.NewSHA1(planNamespace, []byte(fmt.Sprintf("permit/%s/%s/%s", owner.Hex(), s.token.Hex(), s.nonce))).String(),
			Owner:     owner,
			Token:     s.token,
			Amount:    s.amount,
			Recipient: s.recipient,
			Nonce:     s.nonce,
			Deadline:  deadline,
			Witness:   witness,
			TypedData: codec.PermitTypedData(arg, witness, p.cfg.ChainID, p.cfg.PermitProxy),
		})
	}

	var (
		to   common.Address
		data []byte
		err  error
	)
	switch tb.entry {
	case domain.EntryApprovalProxy:
		to = p.cfg.ApprovalProxy
		data, err = codec.EncodeTransferAndExecute(items, tb.recipient, tx.Executions)
	case domain.EntryPermitProxy:
		to = p.cfg.PermitProxy
		data, err = encodePermitCall(tx.Permits, tx.Executions)
	default:
		to = p.cfg.Router
		data, err = codec.EncodeExecute(tx.Executions)
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("encode %s transaction: %w", tb.entry, err)
	}
	tx.TxData = domain.TxData{
		From:  owner,
		To:    to,
		Data:  data,
		Value: domain.TotalValue(tx.Executions),
	}
	return tx, nil
}

// PlanID derives a stable identifier from the plan's encoded transactions.
func PlanID(plan domain.TransactionPlan) string {
	var buf []byte
	for _, a := range plan.PreTxs {
		buf = append(buf, a.TxData.To.Bytes()...)
		buf = append(buf, a.TxData.Data...)
	}
	for _, tx := range plan.Txs {
		buf = append(buf, tx.TxData.To.Bytes()...)
		if tx.TxData.Value != nil {
			buf = append(buf, common.BigToHash(tx.TxData.Value).Bytes()...)
		}
		buf = append(buf, tx.TxData.Data...)
	}
	return uuid.NewSHA1(planNamespace, crypto.Keccak256(buf)).String()
}
