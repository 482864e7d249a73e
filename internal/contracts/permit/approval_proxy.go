// Package permit moves the caller's assets without a per-transfer approval:
// ApprovalProxy uses one standing approval, PermitProxy a signed one-time
// authorization. Both run executions through the router in the same call.
package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// ApprovalProxy pulls items from msg.sender using the standing allowance the
// owner granted the proxy, then calls Router.execute.
type ApprovalProxy struct {
	router common.Address
}

// NewApprovalProxy returns proxy code forwarding to router.
func NewApprovalProxy(router common.Address) *ApprovalProxy {
	return &ApprovalProxy{router: router}
}

func (p *ApprovalProxy) Name() string { return "ApprovalProxy" }

func (p *ApprovalProxy) Call(env *chain.Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.ApprovalProxyABI, input)
	if err != nil {
		return nil, err
	}
	var call codec.TransferAndExecuteCall
	if err := codec.Unpack(m, data, &call); err != nil {
		return nil, err
	}

	for i, it := range call.Items {
		if err := pull(env, it, env.Caller, call.Recipient); err != nil {
			return nil, fmt.Errorf("ApprovalProxy: item %d: %w", i, err)
		}
	}
	return nil, execute(env, p.router, call.Executions)
}

func pull(env *chain.Env, it codec.TransferItem, from, to common.Address) error {
	switch it.ItemType {
	case codec.ItemERC20:
		return chain.ERC20TransferFrom(env, it.Token, from, to, it.Amount)
	case codec.ItemERC721:
		return chain.NFTTransferFrom(env, domain.ContractERC721, it.Token, from, to, it.Identifier, big.NewInt(1))
	case codec.ItemERC1155:
		return chain.NFTTransferFrom(env, domain.ContractERC1155, it.Token, from, to, it.Identifier, it.Amount)
	}
	return fmt.Errorf("unknown item type %d", it.ItemType)
}

func execute(env *chain.Env, router common.Address, execs []codec.ExecutionArg) error {
	if len(execs) == 0 {
		if env.Value.Sign() != 0 {
			return fmt.Errorf("%w: value without executions", domain.ErrInsufficientValue)
		}
		return nil
	}
	data, err := codec.EncodeExecute(codec.ToDomainExecutions(execs))
	if err != nil {
		return err
	}
	_, err = env.Call(router, env.Value, data)
	return err
}
