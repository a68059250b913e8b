package util

import (
	"bytes"

	"github.com/btcsuite/btcutil/base58"
	"github.com/pkg/errors"
)

const (
	SS58_ACCOUNT_LEN  = 32
	SS58_CHECKSUM_LEN = 2
)

var ss58Prefix = []byte("SS58PRE")

// SS58Decode returns the network prefix and 32 byte account id of an SS58 address
func SS58Decode(address string) (uint16, [32]byte, error) {

	var id [32]byte

	raw := base58.Decode(address)
	if len(raw) == 0 {
		return 0, id, errors.Errorf("Address '%s' is not valid base58", address)
	}

	var (
		prefix    uint16
		prefixLen int
	)

	switch {
	case raw[0] < 64:
		prefix, prefixLen = uint16(raw[0]), 1

	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, id, errors.Errorf("Address '%s' is too short", address)
		}
		lower := (raw[0]&0x3f)<<2 | raw[1]>>6
		upper := raw[1] & 0x3f
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2

	default:
		return 0, id, errors.Errorf("Address '%s' has a reserved prefix", address)
	}

	if len(raw) != prefixLen+SS58_ACCOUNT_LEN+SS58_CHECKSUM_LEN {
		return 0, id, errors.Errorf("Address '%s' does not hold a 32 byte account", address)
	}

	payload := raw[:prefixLen+SS58_ACCOUNT_LEN]
	hash, err := Blake2b512(payload, ss58Prefix)
	if err != nil {
		return 0, id, err
	}

	if !bytes.Equal(hash[:SS58_CHECKSUM_LEN], raw[len(payload):]) {
		return 0, id, errors.Errorf("Address '%s' has an invalid checksum", address)
	}

	copy(id[:], raw[prefixLen:])

	return prefix, id, nil
}

func SS58Encode(prefix uint16, id [32]byte) (string, error) {

	var payload []byte

	switch {
	case prefix < 64:
		payload = []byte{byte(prefix)}
	case prefix < 16384:
		first := byte((prefix&0xfc)>>2) | 0x40
		second := byte(prefix>>8) | byte(prefix&0x03)<<6
		payload = []byte{first, second}
	default:
		return "", errors.Errorf("SS58 prefix %d out of range", prefix)
	}

	payload = append(payload, id[:]...)

	hash, err := Blake2b512(payload, ss58Prefix)
	if err != nil {
		return "", err
	}

	return base58.Encode(append(payload, hash[:SS58_CHECKSUM_LEN]...)), nil
}
