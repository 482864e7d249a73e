package orders

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// mapListings converts DTOs to ListingDetail, collecting every error.
func mapListings(raw []orderDTO) ([]domain.ListingDetail, error) {
	out := make([]domain.ListingDetail, 0, len(raw))
	var errs error
	for _, r := range raw {
		d, err := mapDetail(r, domain.SideListing)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, domain.ListingDetail(d))
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// mapBids is mapListings for offers.
func mapBids(raw []orderDTO) ([]domain.BidDetail, error) {
	out := make([]domain.BidDetail, 0, len(raw))
	var errs error
	for _, r := range raw {
		d, err := mapDetail(r, domain.SideOffer)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, domain.BidDetail(d))
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func mapDetail(r orderDTO, side domain.OrderSide) (domain.ListingDetail, error) {
	fail := func(format string, args ...any) (domain.ListingDetail, error) {
		return domain.ListingDetail{}, fmt.Errorf("%w: order %s: %s", domain.ErrInvalidOrder, r.ID, fmt.Sprintf(format, args...))
	}

	if r.ID == "" {
		return fail("missing id")
	}
	protocol, err := domain.ParseProtocolKind(r.Protocol)
	if err != nil {
		return domain.ListingDetail{}, fmt.Errorf("order %s: %w", r.ID, err)
	}
	kind, err := domain.ParseContractKind(r.ContractKind)
	if err != nil {
		return fail("%v", err)
	}
	if s, ok := parseSide(r.Order.Side); !ok || s != side {
		return fail("side %q", r.Order.Side)
	}

	contract, ok := parseAddress(r.Contract)
	if !ok {
		return fail("contract %q", r.Contract)
	}
	maker, ok := parseAddress(r.Order.Maker)
	if !ok {
		return fail("maker %q", r.Order.Maker)
	}
	// zero address = native currency
	currency := common.Address{}
	if r.Currency != "" {
		if currency, ok = parseAddress(r.Currency); !ok {
			return fail("currency %q", r.Currency)
		}
	}

	tokenID, ok := new(big.Int).SetString(r.TokenID, 10)
	if !ok || tokenID.Sign() < 0 {
		return fail("token_id %q", r.TokenID)
	}
	amount := big.NewInt(1)
	if r.Amount != "" {
		if amount, ok = new(big.Int).SetString(r.Amount, 10); !ok || amount.Sign() <= 0 {
			return fail("amount %q", r.Amount)
		}
	}

	decimals := int32(domain.NativeDecimals)
	if r.Decimals != nil {
		decimals = *r.Decimals
	}
	price, err := domain.ParseUnits(r.Price, decimals)
	if err != nil {
		return fail("price: %v", err)
	}

	fees := make([]domain.Fee, 0, len(r.Fees))
	for _, f := range r.Fees {
		to, ok := parseAddress(f.Recipient)
		if !ok {
			return fail("fee recipient %q", f.Recipient)
		}
		v, err := domain.ParseUnits(f.Amount, decimals)
		if err != nil {
			return fail("fee: %v", err)
		}
		fees = append(fees, domain.Fee{Recipient: to, Amount: v})
	}

	salt := new(big.Int)
	if r.Order.Salt != "" {
		if _, ok := salt.SetString(r.Order.Salt, 0); !ok {
			return fail("salt %q", r.Order.Salt)
		}
	}
	feeRecipient := common.Address{}
	if r.Order.MarketplaceFeeRecipient != "" {
		if feeRecipient, ok = parseAddress(r.Order.MarketplaceFeeRecipient); !ok {
			return fail("marketplace fee recipient %q", r.Order.MarketplaceFeeRecipient)
		}
	}

	return domain.ListingDetail{
		OrderID:      r.ID,
		Protocol:     protocol,
		ContractKind: kind,
		Contract:     contract,
		TokenID:      tokenID,
		Amount:       amount,
		Currency:     currency,
		Price:        price,
		Fees:         fees,
		Order: domain.Order{
			Maker:                   maker,
			Collection:              contract,
			TokenID:                 new(big.Int).Set(tokenID),
			Amount:                  new(big.Int).Set(amount),
			Kind:                    kind,
			Side:                    side,
			Currency:                currency,
			Price:                   new(big.Int).Set(price),
			Expiry:                  r.Order.Expiry,
			Salt:                    salt,
			MarketplaceFeeBps:       r.Order.MarketplaceFeeBps,
			MarketplaceFeeRecipient: feeRecipient,
		},
	}, nil
}

func parseSide(s string) (domain.OrderSide, bool) {
	switch s {
	case "listing", "sell":
		return domain.SideListing, true
	case "offer", "bid", "buy":
		return domain.SideOffer, true
	}
	return 0, false
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
