package planner

// Gas and calldata estimates used for packing. Rough upper bounds; the
// submitter estimates real gas before sending.
const (
	txBaseGas       = 21_000
	entryGas        = 30_000 // router dispatch, plus proxy bookkeeping
	executionGas    = 10_000 // per forwarded execution
	moduleCallGas   = 40_000
	defaultOrderGas = 150_000
	swapLegGas      = 120_000
	permitGas       = 60_000
	proxyItemGas    = 50_000

	word           = 32
	selectorBytes  = 4
	orderBytes     = 12 * word
	feeBytes       = 2 * word
	executionBytes = 5 * word // target, value, offset, length, padding
	moduleHead     = selectorBytes + 3*word + 5*word + 2*word
	swapCallBytes  = selectorBytes + 3*word + 2*word + 7*word
	permitBytes    = 6*word + 4*word // struct plus padded signature
	itemBytes      = 4 * word
	entryHead      = selectorBytes + 4*word
)

// cost is the estimated footprint of a packable unit.
type cost struct {
	gas     uint64
	payload int
}

func (c cost) add(o cost) cost {
	return cost{gas: c.gas + o.gas, payload: c.payload + o.payload}
}

func moduleCallCost(orders, fees int, perOrder uint64) cost {
	return cost{
		gas:     executionGas + moduleCallGas + uint64(orders)*perOrder,
		payload: executionBytes + moduleHead + orders*orderBytes + fees*feeBytes,
	}
}

func swapCost(recipients int) cost {
	return cost{
		gas:     executionGas + swapLegGas,
		payload: executionBytes + swapCallBytes + recipients*feeBytes,
	}
}

func itemCost(n int) cost {
	return cost{gas: uint64(n) * proxyItemGas, payload: n * itemBytes}
}

func permitCost() cost {
	return cost{gas: permitGas, payload: permitBytes}
}

func entryCost() cost {
	return cost{gas: txBaseGas + entryGas, payload: entryHead}
}
