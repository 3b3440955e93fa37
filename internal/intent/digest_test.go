package intent

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIntent() Intent {
	return Intent{
		Owner:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		IntentType: TypeSwapExactInMaxSlippage,
		Constraints: Constraints{
			AmountInMax:  big.NewInt(1000),
			AmountOutMin: big.NewInt(900),
			Deadline:     big.NewInt(1700000000),
			SlippageBps:  50,
		},
		InputToken:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		OutputToken: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Nonce:       big.NewInt(7),
	}
}

func fixedDomain() Domain {
	return Domain{
		Name:              "X",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.HexToAddress("0x0000000000000000000000000000000000000001"),
	}
}

func TestTypehashes(t *testing.T) {
	// These byte sequences must match the ledger's own hashing; pinned so a
	// type-string edit cannot slip through unnoticed.
	assert.Equal(t,
		"0x6586c9d28a74a720e8e44222ae1051f911bcd6fd73cd29010c94472d49348a53",
		constraintsTypehash.Hex(),
	)
	assert.Equal(t,
		"0x1980acb92cfca3f552718cc54f77bdbff4147df5b6266298560f13872e0bd119",
		intentTypehash.Hex(),
	)
	assert.Equal(t,
		"0x8b73c3c69bb8fe3d512ecc4cf759cc79239f7b179b0ffacaa9a75d522b39400f",
		domainTypehash.Hex(),
	)
}

func TestDigestGoldenVector(t *testing.T) {
	domain := fixedDomain()

	separator := DomainSeparator(domain)
	assert.Equal(t,
		"0x964cf9a1fda46ff3bdfe8c9080f54c7aa445d266fcc266e8806bfa2059af584b",
		separator.Hex(),
	)

	digest := Digest(fixedIntent(), domain)
	assert.Equal(t,
		"0xbd9dcac8a88f8ebaf6aea701514b7f1ecc6d361247807b74ef48fc86b7e1b869",
		digest.Hex(),
	)
}

func TestDigestDependsOnDomain(t *testing.T) {
	in := fixedIntent()

	base := Digest(in, fixedDomain())

	otherChain := fixedDomain()
	otherChain.ChainID = big.NewInt(1)
	assert.NotEqual(t, base, Digest(in, otherChain))

	otherContract := fixedDomain()
	otherContract.VerifyingContract = common.HexToAddress("0x0000000000000000000000000000000000000002")
	assert.NotEqual(t, base, Digest(in, otherContract))
}

func TestVerifySignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	in := fixedIntent()
	in.Owner = crypto.PubkeyToAddress(key.PublicKey)
	domain := fixedDomain()

	digest := Digest(in, domain)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	assert.True(t, VerifySignature(in, sig, domain))
}

func TestVerifySignatureEthereumRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	in := fixedIntent()
	in.Owner = crypto.PubkeyToAddress(key.PublicKey)
	domain := fixedDomain()

	sig, err := crypto.Sign(Digest(in, domain).Bytes(), key)
	require.NoError(t, err)

	// Wallets commonly emit v as 27/28 rather than 0/1.
	sig[crypto.RecoveryIDOffset] += 27
	assert.True(t, VerifySignature(in, sig, domain))
}

func TestVerifySignatureWrongOwner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	in := fixedIntent()
	in.Owner = crypto.PubkeyToAddress(key.PublicKey)
	domain := fixedDomain()

	sig, err := crypto.Sign(Digest(in, domain).Bytes(), key)
	require.NoError(t, err)

	// A digest signed by key A checked against owner B must be false.
	in.Owner = common.HexToAddress("0x4444444444444444444444444444444444444444")
	assert.False(t, VerifySignature(in, sig, domain))
}

func TestVerifySignatureMalformed(t *testing.T) {
	in := fixedIntent()
	domain := fixedDomain()

	assert.False(t, VerifySignature(in, nil, domain))
	assert.False(t, VerifySignature(in, []byte{1, 2, 3}, domain))

	garbage := make([]byte, crypto.SignatureLength)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	assert.False(t, VerifySignature(in, garbage, domain))
}
