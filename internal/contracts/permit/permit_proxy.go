package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// PermitProxy executes signed one-time transfers. Owners grant the proxy a
// standing ERC-20 allowance once; each transfer then needs a fresh EIP-712
// signature with the next sequential nonce of (owner, token).
type PermitProxy struct {
	router common.Address
}

// NewPermitProxy returns proxy code forwarding to router.
func NewPermitProxy(router common.Address) *PermitProxy {
	return &PermitProxy{router: router}
}

func (p *PermitProxy) Name() string { return "PermitProxy" }

func nonceSlot(owner, token common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("permit.nonce"), owner.Bytes(), token.Bytes())
}

func (p *PermitProxy) Call(env *chain.Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.PermitProxyABI, input)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "nonces":
		args, err := m.Inputs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("PermitProxy.nonces: %w", err)
		}
		n := env.Load(nonceSlot(args[0].(common.Address), args[1].(common.Address)))
		return m.Outputs.Pack(n.Big())

	case "permitTransferAndExecute":
		var call codec.PermitCall
		if err := codec.Unpack(m, data, &call); err != nil {
			return nil, err
		}
		witness, err := codec.ExecutionsWitness(codec.ToDomainExecutions(call.Executions))
		if err != nil {
			return nil, fmt.Errorf("PermitProxy: %w", err)
		}
		if err := p.verify(env, call.Permits, call.Signatures, witness); err != nil {
			return nil, fmt.Errorf("PermitProxy: %w", err)
		}
		for i, pm := range call.Permits {
			if err := chain.ERC20TransferFrom(env, pm.Token, pm.Owner, pm.Recipient, pm.Amount); err != nil {
				return nil, fmt.Errorf("PermitProxy: permit %d: %w", i, err)
			}
		}
		return nil, execute(env, p.router, call.Executions)
	}
	return nil, fmt.Errorf("PermitProxy: %w: %s", domain.ErrUnknownMethod, m.Name)
}

// verify checks and consumes every permit before anything moves. Each
// signature must cover witness, so a permit only funds the executions its
// owner signed for, whoever submits it.
func (p *PermitProxy) verify(env *chain.Env, permits []codec.PermitArg, sigs [][]byte, witness common.Hash) error {
	if len(sigs) != len(permits) {
		return fmt.Errorf("%w: %d signatures for %d permits", domain.ErrBadSignature, len(sigs), len(permits))
	}
	now := new(big.Int).SetUint64(env.Time())

	for i, pm := range permits {
		if pm.Deadline.Cmp(now) < 0 {
			return fmt.Errorf("permit %d: %w: deadline %s, now %s", i, domain.ErrPermitExpired, pm.Deadline, now)
		}

		slot := nonceSlot(pm.Owner, pm.Token)
		next := env.Load(slot).Big()
		if pm.Nonce.Cmp(next) != 0 {
			return fmt.Errorf("permit %d: %w: nonce %s, expected %s", i, domain.ErrNonceUsed, pm.Nonce, next)
		}

		digest, err := codec.TypedDataDigest(codec.PermitTypedData(pm, witness, env.ChainID(), env.Self))
		if err != nil {
			return fmt.Errorf("permit %d: %w", i, err)
		}
		signer, err := codec.RecoverSigner(digest, sigs[i])
		if err != nil {
			return fmt.Errorf("permit %d: %w: %w", i, domain.ErrBadSignature, err)
		}
		if signer != pm.Owner {
			return fmt.Errorf("permit %d: %w: signed by %s, owner %s", i, domain.ErrBadSignature, signer.Hex(), pm.Owner.Hex())
		}

		env.Store(slot, common.BigToHash(new(big.Int).Add(next, big.NewInt(1))))
	}
	return nil
}
