package orders

// Order-source API DTOs. Amounts arrive in human units ("1.5") next to the
// currency's decimals.

type ordersResponse struct {
	Orders []orderDTO `json:"orders"`
}

type orderDTO struct {
	ID           string   `json:"id"`
	Protocol     string   `json:"protocol"`
	ContractKind string   `json:"contract_kind"`
	Contract     string   `json:"contract"`
	TokenID      string   `json:"token_id"`
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	Decimals     *int32   `json:"currency_decimals"`
	Price        string   `json:"price"`
	Fees         []feeDTO `json:"fees"`
	Order        rawOrder `json:"order"`
}

type feeDTO struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// rawOrder is the maker-signed part only the exchange reads.
type rawOrder struct {
	Maker                   string `json:"maker"`
	Side                    string `json:"side"`
	Expiry                  uint64 `json:"expiry"`
	Salt                    string `json:"salt"`
	MarketplaceFeeBps       uint16 `json:"marketplace_fee_bps"`
	MarketplaceFeeRecipient string `json:"marketplace_fee_recipient"`
}
