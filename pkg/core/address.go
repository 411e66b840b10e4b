package core

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// GenerateAddress returns a random 20-byte address, for tests and tools
func GenerateAddress() (common.Address, error) {
	var addr common.Address
	if _, err := rand.Read(addr[:]); err != nil {
		return common.Address{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return addr, nil
}

// ParseAddress parses a 0x-prefixed hex address
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not a hex address", ErrInvalidArgument, s)
	}
	return common.HexToAddress(s), nil
}
