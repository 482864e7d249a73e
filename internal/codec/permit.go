package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// EIP-712 domain of the permit proxy.
const (
	PermitDomainName    = "NFTAggPermit"
	PermitDomainVersion = "1"
)

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": {
		{Name: "owner", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "witness", Type: "bytes32"},
	},
}

// PermitTypedData builds the typed data the owner signs for p on the proxy
// deployed at verifyingContract. witness is the ExecutionsWitness of the
// executions the permit may fund; a signature is void for any other list.
func PermitTypedData(p PermitArg, witness common.Hash, chainID *big.Int, verifyingContract common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              PermitDomainName,
			Version:           PermitDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":     p.Owner.Hex(),
			"token":     p.Token.Hex(),
			"amount":    nz(p.Amount),
			"recipient": p.Recipient.Hex(),
			"nonce":     nz(p.Nonce),
			"deadline":  nz(p.Deadline),
			"witness":   witness.Hex(),
		},
	}
}

// ExecutionsWitness is keccak256 of the ABI encoding of execs, as forwarded
// to Router.execute.
func ExecutionsWitness(execs []domain.Execution) (common.Hash, error) {
	enc, err := RouterABI.Methods["execute"].Inputs.Pack(ToExecutionArgs(execs))
	if err != nil {
		return common.Hash{}, fmt.Errorf("codec.ExecutionsWitness: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// TypedDataDigest returns keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func TypedDataDigest(td apitypes.TypedData) (common.Hash, error) {
	domainHash, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("codec.TypedDataDigest: domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("codec.TypedDataDigest: message: %w", err)
	}
	return crypto.Keccak256Hash([]byte("\x19\x01"), domainHash, messageHash), nil
}

// RecoverSigner returns the address that produced sig over digest.
// Signatures use the 27/28 recovery id convention.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("codec.RecoverSigner: signature length %d", len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("codec.RecoverSigner: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
