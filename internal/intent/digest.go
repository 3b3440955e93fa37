package intent

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain scopes a typed-data digest to one specific deployment so a
// signature cannot be replayed against a different contract or chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain is the domain the intent book contract is deployed with.
func DefaultDomain(chainID uint64, verifyingContract common.Address) Domain {
	return Domain{
		Name:              "AgentIntentBook",
		Version:           "1",
		ChainID:           new(big.Int).SetUint64(chainID),
		VerifyingContract: verifyingContract,
	}
}

// Typehashes are fixed strings; hash them once instead of on every digest.
// The byte sequences below must match the contract's own hashing exactly.
var (
	constraintsTypehash = crypto.Keccak256Hash([]byte(
		"Constraints(uint256 amountInMax,uint256 amountOutMin,uint256 deadline,uint16 slippageBps)",
	))

	intentTypehash = crypto.Keccak256Hash([]byte(
		"Intent(address owner,uint8 intentType,Constraints constraints," +
			"address inputToken,address outputToken,uint256 nonce)" +
			"Constraints(uint256 amountInMax,uint256 amountOutMin,uint256 deadline,uint16 slippageBps)",
	))

	domainTypehash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
)

const wordSize = 32

func hashConstraints(c Constraints) common.Hash {
	var buf bytes.Buffer
	buf.Write(constraintsTypehash.Bytes())
	buf.Write(uintWord(c.AmountInMax))
	buf.Write(uintWord(c.AmountOutMin))
	buf.Write(uintWord(c.Deadline))
	buf.Write(uintWord(new(big.Int).SetUint64(uint64(c.SlippageBps))))
	return crypto.Keccak256Hash(buf.Bytes())
}

func hashIntent(in Intent) common.Hash {
	var buf bytes.Buffer
	buf.Write(intentTypehash.Bytes())
	buf.Write(addressWord(in.Owner))
	buf.Write(uintWord(new(big.Int).SetUint64(uint64(in.IntentType))))
	buf.Write(hashConstraints(in.Constraints).Bytes())
	buf.Write(addressWord(in.InputToken))
	buf.Write(addressWord(in.OutputToken))
	buf.Write(uintWord(in.Nonce))
	return crypto.Keccak256Hash(buf.Bytes())
}

// DomainSeparator hashes the domain descriptor.
func DomainSeparator(d Domain) common.Hash {
	var buf bytes.Buffer
	buf.Write(domainTypehash.Bytes())
	buf.Write(crypto.Keccak256([]byte(d.Name)))
	buf.Write(crypto.Keccak256([]byte(d.Version)))
	buf.Write(uintWord(d.ChainID))
	buf.Write(addressWord(d.VerifyingContract))
	return crypto.Keccak256Hash(buf.Bytes())
}

// Digest computes the typed-data digest for a signed intent:
// keccak256(0x19 0x01 || domainSeparator || structHash).
func Digest(in Intent, d Domain) common.Hash {
	separator := DomainSeparator(d)
	structHash := hashIntent(in)

	var buf bytes.Buffer
	buf.Write([]byte{0x19, 0x01})
	buf.Write(separator.Bytes())
	buf.Write(structHash.Bytes())
	return crypto.Keccak256Hash(buf.Bytes())
}

// VerifySignature recovers the signer of the intent digest and checks it
// against the intent's declared owner. It is a predicate: recovery failures
// and mismatches both yield false, never an error.
func VerifySignature(in Intent, signature []byte, d Domain) bool {
	if len(signature) != crypto.SignatureLength {
		return false
	}

	// Accept Ethereum-style recovery ids 27/28 alongside raw 0/1.
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := Digest(in, d)
	pubkey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return false
	}

	// common.Address comparison is canonical bytes, so hex casing of the
	// declared owner never matters.
	return crypto.PubkeyToAddress(*pubkey) == in.Owner
}

func uintWord(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), wordSize)
}
