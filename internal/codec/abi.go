package codec

// abi.go: Solidity ABIs of every contract the engine talks to.
//
// The same definitions are used off-chain by the planner to build calldata and
// on the simulated ledger by the contracts to decode it, so a plan that runs in
// simulation encodes exactly what a real deployment receives.

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	orderTuple = `{"name": "%s", "type": "tuple%s", "components": [
		{"name": "maker", "type": "address"},
		{"name": "collection", "type": "address"},
		{"name": "tokenId", "type": "uint256"},
		{"name": "amount", "type": "uint256"},
		{"name": "kind", "type": "uint8"},
		{"name": "side", "type": "uint8"},
		{"name": "currency", "type": "address"},
		{"name": "price", "type": "uint256"},
		{"name": "expiry", "type": "uint64"},
		{"name": "salt", "type": "uint256"},
		{"name": "marketplaceFeeBps", "type": "uint16"},
		{"name": "marketplaceFeeRecipient", "type": "address"}
	]}`

	executionTuple = `{"name": "%s", "type": "tuple%s", "components": [
		{"name": "target", "type": "address"},
		{"name": "data", "type": "bytes"},
		{"name": "value", "type": "uint256"}
	]}`

	feeTuple = `{"name": "%s", "type": "tuple%s", "components": [
		{"name": "recipient", "type": "address"},
		{"name": "amount", "type": "uint256"}
	]}`

	fillParamsTuple = `{"name": "params", "type": "tuple", "components": [
		{"name": "fillTo", "type": "address"},
		{"name": "refundTo", "type": "address"},
		{"name": "revertIfIncomplete", "type": "bool"},
		{"name": "amount", "type": "uint256"},
		{"name": "token", "type": "address"}
	]}`

	offerParamsTuple = `{"name": "params", "type": "tuple", "components": [
		{"name": "fillTo", "type": "address"},
		{"name": "refundTo", "type": "address"},
		{"name": "revertIfIncomplete", "type": "bool"}
	]}`

	swapLegTuple = `{"name": "swaps", "type": "tuple[]", "components": [
		{"name": "tokenIn", "type": "address"},
		{"name": "tokenOut", "type": "address"},
		{"name": "maxAmountIn", "type": "uint256"},
		{"name": "exactAmountOut", "type": "uint256"},
		` + `{"name": "recipients", "type": "tuple[]", "components": [
			{"name": "recipient", "type": "address"},
			{"name": "amount", "type": "uint256"}
		]}
	]}`

	transferItemTuple = `{"name": "items", "type": "tuple[]", "components": [
		{"name": "itemType", "type": "uint8"},
		{"name": "token", "type": "address"},
		{"name": "identifier", "type": "uint256"},
		{"name": "amount", "type": "uint256"}
	]}`

	permitTuple = `{"name": "permits", "type": "tuple[]", "components": [
		{"name": "owner", "type": "address"},
		{"name": "token", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "recipient", "type": "address"},
		{"name": "nonce", "type": "uint256"},
		{"name": "deadline", "type": "uint256"}
	]}`
)

// Contract ABIs
var (
	ERC20ABI         abi.ABI
	WETHABI          abi.ABI
	ERC721ABI        abi.ABI
	ERC1155ABI       abi.ABI
	RouterABI        abi.ABI
	ModuleABI        abi.ABI
	ExchangeABI      abi.ABI
	VenueABI         abi.ABI
	SwapAdapterABI   abi.ABI
	ApprovalProxyABI abi.ABI
	PermitProxyABI   abi.ABI
)

func tuple(tpl, name, suffix string) string {
	return strings.Replace(strings.Replace(tpl, "%s", name, 1), "%s", suffix, 1)
}

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

func init() {
	ERC20ABI = mustParse("erc20", `[
		{"name": "transfer", "type": "function",
		 "inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "transferFrom", "type": "function",
		 "inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "approve", "type": "function",
		 "inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "balanceOf", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "owner", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "allowance", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]}
	]`)

	WETHABI = mustParse("weth", `[
		{"name": "deposit", "type": "function", "stateMutability": "payable", "inputs": [], "outputs": []},
		{"name": "withdraw", "type": "function",
		 "inputs": [{"name": "amount", "type": "uint256"}], "outputs": []}
	]`)

	ERC721ABI = mustParse("erc721", `[
		{"name": "setApprovalForAll", "type": "function",
		 "inputs": [{"name": "operator", "type": "address"}, {"name": "approved", "type": "bool"}],
		 "outputs": []},
		{"name": "isApprovedForAll", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "owner", "type": "address"}, {"name": "operator", "type": "address"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "ownerOf", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "tokenId", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "address"}]},
		{"name": "transferFrom", "type": "function",
		 "inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}, {"name": "tokenId", "type": "uint256"}],
		 "outputs": []}
	]`)

	ERC1155ABI = mustParse("erc1155", `[
		{"name": "setApprovalForAll", "type": "function",
		 "inputs": [{"name": "operator", "type": "address"}, {"name": "approved", "type": "bool"}],
		 "outputs": []},
		{"name": "isApprovedForAll", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "account", "type": "address"}, {"name": "operator", "type": "address"}],
		 "outputs": [{"name": "", "type": "bool"}]},
		{"name": "balanceOf", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "account", "type": "address"}, {"name": "id", "type": "uint256"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "safeTransferFrom", "type": "function",
		 "inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}, {"name": "id", "type": "uint256"},
		            {"name": "amount", "type": "uint256"}, {"name": "data", "type": "bytes"}],
		 "outputs": []}
	]`)

	RouterABI = mustParse("router", `[
		{"name": "execute", "type": "function", "stateMutability": "payable",
		 "inputs": [`+tuple(executionTuple, "executions", "[]")+`], "outputs": []}
	]`)

	ModuleABI = mustParse("module", `[
		{"name": "acceptETHListings", "type": "function", "stateMutability": "payable",
		 "inputs": [`+tuple(orderTuple, "orders", "[]")+`, `+fillParamsTuple+`, `+tuple(feeTuple, "fees", "[]")+`],
		 "outputs": []},
		{"name": "acceptETHListing", "type": "function", "stateMutability": "payable",
		 "inputs": [`+tuple(orderTuple, "order", "")+`, `+fillParamsTuple+`, `+tuple(feeTuple, "fees", "[]")+`],
		 "outputs": []},
		{"name": "acceptERC20Listings", "type": "function",
		 "inputs": [`+tuple(orderTuple, "orders", "[]")+`, `+fillParamsTuple+`, `+tuple(feeTuple, "fees", "[]")+`],
		 "outputs": []},
		{"name": "acceptOffers", "type": "function",
		 "inputs": [`+tuple(orderTuple, "orders", "[]")+`, `+offerParamsTuple+`, `+tuple(feeTuple, "fees", "[]")+`],
		 "outputs": []},
		{"name": "FillReport", "type": "event", "anonymous": false,
		 "inputs": [{"name": "orderHash", "type": "bytes32", "indexed": true},
		            {"name": "filled", "type": "bool", "indexed": false},
		            {"name": "reason", "type": "string", "indexed": false}]}
	]`)

	ExchangeABI = mustParse("exchange", `[
		{"name": "fill", "type": "function", "stateMutability": "payable",
		 "inputs": [`+tuple(orderTuple, "order", "")+`, {"name": "recipient", "type": "address"}],
		 "outputs": []},
		{"name": "cancel", "type": "function",
		 "inputs": [`+tuple(orderTuple, "order", "")+`], "outputs": []},
		{"name": "status", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "orderHash", "type": "bytes32"}],
		 "outputs": [{"name": "filled", "type": "bool"}, {"name": "cancelled", "type": "bool"}]}
	]`)

	VenueABI = mustParse("venue", `[
		{"name": "swap", "type": "function",
		 "inputs": [{"name": "tokenIn", "type": "address"}, {"name": "tokenOut", "type": "address"},
		            {"name": "amountOut", "type": "uint256"}, {"name": "amountInMax", "type": "uint256"},
		            {"name": "recipient", "type": "address"}],
		 "outputs": [{"name": "amountIn", "type": "uint256"}]},
		{"name": "quoteExactOutput", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "tokenIn", "type": "address"}, {"name": "tokenOut", "type": "address"},
		            {"name": "amountOut", "type": "uint256"}],
		 "outputs": [{"name": "amountIn", "type": "uint256"}]},
		{"name": "quoteExactInput", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "tokenIn", "type": "address"}, {"name": "tokenOut", "type": "address"},
		            {"name": "amountIn", "type": "uint256"}],
		 "outputs": [{"name": "amountOut", "type": "uint256"}]}
	]`)

	SwapAdapterABI = mustParse("swap adapter", `[
		{"name": "convertExactOutput", "type": "function", "stateMutability": "payable",
		 "inputs": [`+swapLegTuple+`, {"name": "refundTo", "type": "address"}, {"name": "unwrap", "type": "bool"}],
		 "outputs": []}
	]`)

	ApprovalProxyABI = mustParse("approval proxy", `[
		{"name": "transferAndExecute", "type": "function", "stateMutability": "payable",
		 "inputs": [`+transferItemTuple+`, {"name": "recipient", "type": "address"}, `+tuple(executionTuple, "executions", "[]")+`],
		 "outputs": []}
	]`)

	PermitProxyABI = mustParse("permit proxy", `[
		{"name": "permitTransferAndExecute", "type": "function", "stateMutability": "payable",
		 "inputs": [`+permitTuple+`, {"name": "signatures", "type": "bytes[]"}, `+tuple(executionTuple, "executions", "[]")+`],
		 "outputs": []},
		{"name": "nonces", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "owner", "type": "address"}, {"name": "token", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]}
	]`)
}
