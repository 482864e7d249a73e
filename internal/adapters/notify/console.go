package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Format selects how the console renders plans and reports.
type Format string

const (
	FormatTable   Format = "table"
	FormatCompact Format = "compact"
	FormatJSON    Format = "json"
)

// ParseFormat validates the -format flag. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatTable, nil
	case FormatTable, FormatCompact, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Console implements ports.Notifier.
type Console struct {
	out    io.Writer
	format Format
	now    func() time.Time
}

// NewConsole returns a notifier writing to stdout.
func NewConsole(format Format) *Console {
	return NewConsoleWriter(os.Stdout, format)
}

// NewConsoleWriter returns a notifier writing to w.
func NewConsoleWriter(w io.Writer, format Format) *Console {
	if format == "" {
		format = FormatTable
	}
	return &Console{out: w, format: format, now: time.Now}
}

// NotifyPlans prints the plans in the configured format.
func (c *Console) NotifyPlans(_ context.Context, plans []domain.TransactionPlan) error {
	if c.format == FormatJSON {
		return c.writeJSON(plans)
	}
	if len(plans) == 0 {
		fmt.Fprintf(c.out, "[%s] nothing to plan\n", c.stamp())
		return nil
	}
	if c.format == FormatCompact {
		c.printPlansCompact(plans)
		return nil
	}

	txs, orders := 0, 0
	for _, p := range plans {
		txs += len(p.Txs)
		orders += p.OrderCount()
	}
	fmt.Fprintf(c.out, "\n[%s] %d plan(s), %d transaction(s), %d order(s)\n", c.stamp(), len(plans), txs, orders)

	for i, p := range plans {
		fmt.Fprintf(c.out, "\nPlan %d  %s\n", i+1, p.ID)
		for _, a := range p.PreTxs {
			fmt.Fprintf(c.out, "  pre-tx: %s %s → %s\n", a.Kind, short(a.Token), short(a.Spender))
		}

		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Entry", "To", "Orders", "Value", "Gas", "Calldata", "Permits", "Pre-sigs")
		for j, tx := range p.Txs {
			table.Append(
				fmt.Sprintf("%d", j+1),
				string(tx.Entry),
				short(tx.TxData.To),
				orderList(tx.Orders, 4),
				domain.FormatUnits(tx.TxData.Value, domain.NativeDecimals),
				fmt.Sprintf("%d", tx.GasEstimate),
				fmt.Sprintf("%dB", len(tx.TxData.Data)),
				permitLabel(tx),
				fmt.Sprintf("%d", len(tx.PreSignatures)),
			)
		}
		table.Render()
	}
	fmt.Fprintln(c.out, "  Value en unidades nativas | Gas = cota superior estimada | Permits = firmados/total")
	return nil
}

func (c *Console) printPlansCompact(plans []domain.TransactionPlan) {
	for i, p := range plans {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[%s] plan %d %s pre:%d", c.stamp(), i+1, shortID(p.ID), len(p.PreTxs))
		for _, tx := range p.Txs {
			fmt.Fprintf(&sb, " | %s orders:%d value:%s",
				tx.Entry, len(tx.Orders), domain.FormatUnits(tx.TxData.Value, domain.NativeDecimals))
			if len(tx.Permits) > 0 {
				fmt.Fprintf(&sb, " permits:%s", permitLabel(tx))
			}
		}
		fmt.Fprintln(c.out, sb.String())
	}
}

// NotifyReports prints the outcome of every submitted transaction.
func (c *Console) NotifyReports(_ context.Context, reports []domain.ExecutionReport) error {
	if c.format == FormatJSON {
		return c.writeJSON(reports)
	}
	if len(reports) == 0 {
		fmt.Fprintf(c.out, "[%s] nothing executed\n", c.stamp())
		return nil
	}

	counts := make(map[domain.ExecutionStatus]int)
	filled, skipped := 0, 0
	for _, r := range reports {
		counts[r.Status]++
		filled += len(r.Filled)
		skipped += len(r.Skipped)
	}

	if c.format == FormatCompact {
		fmt.Fprintf(c.out, "[%s] %d tx → ok:%d partial:%d reverted:%d skipped:%d | orders filled:%d skipped:%d\n",
			c.stamp(), len(reports),
			counts[domain.StatusSucceeded], counts[domain.StatusPartial],
			counts[domain.StatusReverted], counts[domain.StatusSkipped],
			filled, skipped)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] execution: %d transaction(s), %d filled, %d skipped\n", c.stamp(), len(reports), filled, skipped)
	table := tablewriter.NewWriter(c.out)
	table.Header("Plan", "Tx", "Status", "Filled", "Skipped", "Tx hash", "Error")
	for _, r := range reports {
		table.Append(
			shortID(r.PlanID),
			fmt.Sprintf("%d", r.TxIndex+1),
			string(r.Status),
			orderList(r.Filled, 4),
			orderList(r.Skipped, 4),
			shortHash(r.TxHash),
			r.Error,
		)
	}
	table.Render()
	return nil
}

func (c *Console) writeJSON(v any) error {
	b, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("notify.writeJSON: %w", err)
	}
	b = append(b, '\n')
	_, err = c.out.Write(b)
	return err
}

func (c *Console) stamp() string {
	return c.now().Format("15:04:05")
}

// --- helpers ---

func permitLabel(tx domain.Transaction) string {
	if len(tx.Permits) == 0 {
		return "-"
	}
	signed := 0
	for _, p := range tx.Permits {
		if p.Signed() {
			signed++
		}
	}
	return fmt.Sprintf("%d/%d", signed, len(tx.Permits))
}

// orderList shows up to limit IDs and the rest as "+N".
func orderList(ids []string, limit int) string {
	if len(ids) == 0 {
		return "-"
	}
	if len(ids) <= limit {
		return strings.Join(ids, ",")
	}
	return fmt.Sprintf("%s +%d", strings.Join(ids[:limit], ","), len(ids)-limit)
}

func short(a common.Address) string {
	h := a.Hex()
	if len(h) <= 12 {
		return h
	}
	return h[:6] + "…" + h[len(h)-4:]
}

func shortHash(h string) string {
	if len(h) <= 14 {
		if h == "" {
			return "-"
		}
		return h
	}
	return h[:10] + "…"
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
