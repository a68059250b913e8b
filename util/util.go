package util

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Blake2b512 is the 64 byte variant used for SS58 checksums
func Blake2b512(bufferBytes []byte, prefix []byte) ([]byte, error) {

	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable create blake2b hash object")
	}

	if _, err = h.Write(prefix); err != nil {
		return nil, errors.Wrap(err, "Unable write prefix to hash function")
	}

	if _, err = h.Write(bufferBytes); err != nil {
		return nil, errors.Wrap(err, "Unable write buffer bytes to hash function")
	}

	return h.Sum(nil), nil
}

func StripQuote(s string) string {

	m := strings.TrimSpace(s)
	if len(m) > 0 && (m[0] == '"' || m[0] == '\'') {
		m = m[1:]
	}

	if len(m) > 0 && (m[len(m)-1] == '"' || m[len(m)-1] == '\'') {
		m = m[:len(m)-1]
	}

	return m
}

// AccountHex renders an account id as 0x prefixed lowercase hex
func AccountHex(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// FromPlanck converts an integer amount of the smallest unit into whole CTC
func FromPlanck(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
