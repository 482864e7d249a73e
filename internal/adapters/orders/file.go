package orders

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// FileSource serves orders from a JSON file in the API's response format.
// Used for dry runs against the local engine.
type FileSource struct {
	byID  map[string]orderDTO
	order []string
}

// LoadFile reads path once; later fetches never touch the disk.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("orders.LoadFile: %w", err)
	}
	var resp ordersResponse
	if err := sonnet.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("orders.LoadFile: %s: %w", path, err)
	}
	fs := &FileSource{byID: make(map[string]orderDTO, len(resp.Orders))}
	for _, o := range resp.Orders {
		if _, dup := fs.byID[o.ID]; dup {
			return nil, fmt.Errorf("orders.LoadFile: duplicate order id %q", o.ID)
		}
		fs.byID[o.ID] = o
		fs.order = append(fs.order, o.ID)
	}
	return fs, nil
}

// IDs returns the file's order IDs of the given side, in file order.
func (f *FileSource) IDs(side domain.OrderSide) []string {
	var out []string
	for _, id := range f.order {
		if s, ok := parseSide(f.byID[id].Order.Side); ok && s == side {
			out = append(out, id)
		}
	}
	return out
}

func (f *FileSource) lookup(ids []string) ([]orderDTO, error) {
	out := make([]orderDTO, 0, len(ids))
	var missing []string
	for _, id := range ids {
		o, ok := f.byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, o)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown ids %s", domain.ErrInvalidOrder, strings.Join(missing, ","))
	}
	return out, nil
}

// FetchListings implements ports.OrderSource.
func (f *FileSource) FetchListings(_ context.Context, ids []string) ([]domain.ListingDetail, error) {
	raw, err := f.lookup(ids)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchListings: %w", err)
	}
	out, err := mapListings(raw)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchListings: %w", err)
	}
	return out, nil
}

// FetchBids implements ports.OrderSource.
func (f *FileSource) FetchBids(_ context.Context, ids []string) ([]domain.BidDetail, error) {
	raw, err := f.lookup(ids)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchBids: %w", err)
	}
	out, err := mapBids(raw)
	if err != nil {
		return nil, fmt.Errorf("orders.FetchBids: %w", err)
	}
	return out, nil
}
