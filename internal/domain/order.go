package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolKind is the closed set of marketplace protocol families a module exists for.
type ProtocolKind string

const (
	ProtocolOrderbook ProtocolKind = "orderbook"
	ProtocolPool      ProtocolKind = "pool"
	ProtocolAuction   ProtocolKind = "auction"
)

// ParseProtocolKind validates a protocol name coming from config or an API.
func ParseProtocolKind(s string) (ProtocolKind, error) {
	switch ProtocolKind(s) {
	case ProtocolOrderbook, ProtocolPool, ProtocolAuction:
		return ProtocolKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
}

// ContractKind is the NFT token standard of an order's asset.
type ContractKind uint8

const (
	ContractERC721 ContractKind = iota
	ContractERC1155
)

func (k ContractKind) String() string {
	switch k {
	case ContractERC721:
		return "erc721"
	case ContractERC1155:
		return "erc1155"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseContractKind accepts "erc721" or "erc1155".
func ParseContractKind(s string) (ContractKind, error) {
	switch s {
	case "erc721", "ERC721":
		return ContractERC721, nil
	case "erc1155", "ERC1155":
		return ContractERC1155, nil
	}
	return 0, fmt.Errorf("unknown contract kind %q", s)
}

// OrderSide distinguishes listings (maker sells) from offers (maker buys).
type OrderSide uint8

const (
	SideListing OrderSide = iota
	SideOffer
)

// Order is the normalized order handed to an Exchange Adapter. The core only
// reads Price and Currency; everything else belongs to the exchange.
type Order struct {
	Maker                   common.Address
	Collection              common.Address
	TokenID                 *big.Int
	Amount                  *big.Int // 1 for ERC721
	Kind                    ContractKind
	Side                    OrderSide
	Currency                common.Address
	Price                   *big.Int
	Expiry                  uint64
	Salt                    *big.Int
	MarketplaceFeeBps       uint16
	MarketplaceFeeRecipient common.Address
}

// ListingDetail is one listing the Planner has to fill.
type ListingDetail struct {
	OrderID      string
	Protocol     ProtocolKind
	ContractKind ContractKind
	Contract     common.Address
	TokenID      *big.Int
	Amount       *big.Int
	Order        Order
	Currency     common.Address
	Price        *big.Int
	Fees         []Fee
}

// BidDetail is one offer the Planner has to accept on behalf of the NFT owner.
type BidDetail struct {
	OrderID      string
	Protocol     ProtocolKind
	ContractKind ContractKind
	Contract     common.Address
	TokenID      *big.Int
	Amount       *big.Int
	Order        Order
	Currency     common.Address
	Price        *big.Int
	Fees         []Fee
}

// Units returns the quantity of the asset, defaulting to one.
func (l ListingDetail) Units() *big.Int {
	if l.Amount == nil || l.Amount.Sign() == 0 {
		return big.NewInt(1)
	}
	return l.Amount
}

// Units returns the quantity of the asset, defaulting to one.
func (b BidDetail) Units() *big.Int {
	if b.Amount == nil || b.Amount.Sign() == 0 {
		return big.NewInt(1)
	}
	return b.Amount
}

// SumPrices totals the prices of the given orders.
func SumPrices(orders []Order) *big.Int {
	total := new(big.Int)
	for _, o := range orders {
		if o.Price != nil {
			total.Add(total, o.Price)
		}
	}
	return total
}
