// Package executor submits transaction plans and reports what each
// transaction actually filled.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
	"github.com/alejandrodnm/nftagg/internal/planner"
	"github.com/alejandrodnm/nftagg/internal/ports"
)

// ErrPreTxFailed is recorded when a plan's approval did not land.
var ErrPreTxFailed = errors.New("pre-transaction failed")

// Executor runs plans strictly in order. Within a plan, transactions are
// independent: one reverting does not stop the others.
type Executor struct {
	submitter ports.Submitter
	signer    ports.Signer
	store     ports.PlanStorage // optional
	now       func() time.Time
}

// New returns an Executor. store may be nil.
func New(submitter ports.Submitter, signer ports.Signer, store ports.PlanStorage) *Executor {
	return &Executor{submitter: submitter, signer: signer, store: store, now: time.Now}
}

// Execute submits every plan and returns one report per transaction, in plan
// order. A Submit error leaves the outcome unknown: execution stops, the
// remaining transactions are reported SKIPPED and the error is returned.
func (e *Executor) Execute(ctx context.Context, plans []domain.TransactionPlan) ([]domain.ExecutionReport, error) {
	var (
		reports []domain.ExecutionReport
		halt    string
		fatal   error
	)
	for _, plan := range plans {
		if halt != "" {
			reports = append(reports, e.skipAll(plan, halt)...)
			continue
		}

		if err := e.submitPreTxs(ctx, plan); err != nil {
			slog.Error("executor: pre-transaction failed", "plan", plan.ID, "err", err)
			reports = append(reports, e.skipAll(plan, err.Error())...)
			// approvals go out once; later plans depend on them too
			halt = fmt.Sprintf("earlier plan %s: %v", plan.ID, err)
			if !errors.Is(err, ErrPreTxFailed) {
				fatal = err
			}
			continue
		}

		for i, tx := range plan.Txs {
			if halt != "" {
				reports = append(reports, e.skipped(plan.ID, i, tx, halt))
				continue
			}
			r, err := e.submitTx(ctx, plan.ID, i, tx)
			reports = append(reports, r)
			if err != nil {
				slog.Error("executor: submit failed", "plan", plan.ID, "tx", i, "err", err)
				halt = fmt.Sprintf("earlier transaction %s/%d: %v", plan.ID, i, err)
				fatal = err
				continue
			}
			// Permit nonces are sequential: one left unconsumed invalidates the rest.
			if len(tx.Permits) > 0 {
				switch r.Status {
				case domain.StatusReverted:
					halt = fmt.Sprintf("permit transaction %s/%d reverted", plan.ID, i)
				case domain.StatusSkipped:
					halt = fmt.Sprintf("permit transaction %s/%d not signed: %s", plan.ID, i, r.Error)
				}
			}
		}
	}

	for _, r := range reports {
		e.persist(ctx, r)
	}
	if fatal != nil {
		return reports, fmt.Errorf("executor.Execute: %w", fatal)
	}
	return reports, nil
}

func (e *Executor) submitPreTxs(ctx context.Context, plan domain.TransactionPlan) error {
	for _, pre := range plan.PreTxs {
		r, err := e.submitter.Submit(ctx, pre.TxData)
		if err != nil {
			return fmt.Errorf("%s approval of %s: %w", pre.Kind, pre.Token.Hex(), err)
		}
		if !r.Success {
			return fmt.Errorf("%w: %s approval of %s in %s: %s", ErrPreTxFailed, pre.Kind, pre.Token.Hex(), r.TxHash, r.Error)
		}
		slog.Info("executor: approval confirmed", "plan", plan.ID, "kind", pre.Kind, "token", pre.Token.Hex(), "tx", r.TxHash)
	}
	return nil
}

// submitTx signs what is missing, submits, and turns the receipt into a
// report. A signing failure comes back as a SKIPPED report with a nil error.
func (e *Executor) submitTx(ctx context.Context, planID string, index int, tx domain.Transaction) (domain.ExecutionReport, error) {
	tx, err := e.sign(ctx, tx)
	if err != nil {
		slog.Warn("executor: signing failed", "plan", planID, "tx", index, "err", err)
		return e.skipped(planID, index, tx, err.Error()), nil
	}

	receipt, err := e.submitter.Submit(ctx, tx.TxData)
	if err != nil {
		return e.skipped(planID, index, tx, err.Error()), err
	}
	r := Report(planID, index, tx, receipt)
	r.ExecutedAt = e.now().UTC()
	slog.Info("executor: transaction mined",
		"plan", planID,
		"tx", index,
		"hash", receipt.TxHash,
		"status", r.Status,
		"filled", len(r.Filled),
		"skipped", len(r.Skipped),
		"gas_used", receipt.GasUsed,
	)
	return r, nil
}

func (e *Executor) sign(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if len(tx.PreSignatures) > 0 {
		sigs := make([]domain.PreSignatureRequest, len(tx.PreSignatures))
		copy(sigs, tx.PreSignatures)
		for i := range sigs {
			if err := e.checkSigner(sigs[i].Signer); err != nil {
				return tx, fmt.Errorf("pre-signature for %s: %w", sigs[i].OrderID, err)
			}
			sig, err := e.signer.SignMessage(ctx, sigs[i].Message)
			if err != nil {
				return tx, fmt.Errorf("pre-signature for %s: %w", sigs[i].OrderID, err)
			}
			sigs[i].Signature = sig
			slog.Debug("executor: pre-signature", "order", sigs[i].OrderID, "kind", sigs[i].Kind)
		}
		tx.PreSignatures = sigs
	}

	if !tx.NeedsSignatures() {
		return planner.Finalize(tx)
	}
	permits := make([]domain.PermitRequest, len(tx.Permits))
	copy(permits, tx.Permits)
	for i := range permits {
		if permits[i].Signed() {
			continue
		}
		if err := e.checkSigner(permits[i].Owner); err != nil {
			return tx, fmt.Errorf("permit %s: %w", permits[i].ID, err)
		}
		sig, err := e.signer.SignPermit(ctx, permits[i])
		if err != nil {
			return tx, fmt.Errorf("permit %s: %w", permits[i].ID, err)
		}
		permits[i].Signature = sig
	}
	tx.Permits = permits
	return planner.Finalize(tx)
}

func (e *Executor) checkSigner(want common.Address) error {
	if e.signer == nil {
		return fmt.Errorf("no signer configured")
	}
	if got := e.signer.Address(); got != want {
		return fmt.Errorf("signer is %s, request is for %s", got.Hex(), want.Hex())
	}
	return nil
}

func (e *Executor) skipAll(plan domain.TransactionPlan, reason string) []domain.ExecutionReport {
	out := make([]domain.ExecutionReport, len(plan.Txs))
	for i, tx := range plan.Txs {
		out[i] = e.skipped(plan.ID, i, tx, reason)
	}
	return out
}

func (e *Executor) skipped(planID string, index int, tx domain.Transaction, reason string) domain.ExecutionReport {
	return domain.ExecutionReport{
		PlanID:     planID,
		TxIndex:    index,
		Status:     domain.StatusSkipped,
		Skipped:    append([]string(nil), tx.Orders...),
		Error:      reason,
		ExecutedAt: e.now().UTC(),
	}
}

func (e *Executor) persist(ctx context.Context, r domain.ExecutionReport) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveReport(ctx, r); err != nil {
		slog.Warn("executor: storage error", "plan", r.PlanID, "tx", r.TxIndex, "err", err)
	}
}

// Report matches a receipt's fill logs against the orders the transaction
// carried. An order counts as filled only if a module reported its hash filled.
func Report(planID string, index int, tx domain.Transaction, receipt domain.Receipt) domain.ExecutionReport {
	r := domain.ExecutionReport{
		PlanID:  planID,
		TxIndex: index,
		TxHash:  receipt.TxHash,
	}
	if !receipt.Success {
		r.Status = domain.StatusReverted
		r.Error = receipt.Error
		r.Skipped = append([]string(nil), tx.Orders...)
		return r
	}

	filled := make(map[string]int)
	for _, l := range receipt.Logs {
		if l.Filled {
			filled[l.OrderHash]++
		}
	}
	for i, id := range tx.Orders {
		hash := ""
		if i < len(tx.OrderHashes) {
			hash = tx.OrderHashes[i]
		}
		if filled[hash] > 0 {
			filled[hash]--
			r.Filled = append(r.Filled, id)
		} else {
			r.Skipped = append(r.Skipped, id)
		}
	}
	r.Status = domain.StatusSucceeded
	if len(r.Skipped) > 0 {
		r.Status = domain.StatusPartial
	}
	return r
}
