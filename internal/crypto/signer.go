package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Signer holds the trader's signing key and produces signed raw
// transactions for submission via eth_sendRawTransaction. It is read-only
// after construction and safe for concurrent use from multiple goroutines,
// matching the original EIP-712 Signer's shape but generalized from
// off-chain struct signing to on-chain transaction signing.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (42161 for Arbitrum One).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	return &Signer{
		privateKey: pk,
		address:    addr,
		chainID:    big.NewInt(int64(chainID)),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs a dynamic-fee (EIP-1559) transaction calling `to` with
// `data`, value `value`, using the supplied nonce/gas parameters, and
// returns the signed transaction ready for eth_sendRawTransaction.
func (s *Signer) SignTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasTipCap, gasFeeCap *big.Int, data []byte) (*ethtypes.Transaction, error) {
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signer := ethtypes.NewLondonSigner(s.chainID)
	signed, err := ethtypes.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing transaction: %w", err)
	}
	return signed, nil
}
