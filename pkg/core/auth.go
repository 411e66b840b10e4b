package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Caller is a verified caller identity handed to mutating operations by
// whatever authenticated the request.
type Caller struct {
	address common.Address
}

// NewCaller wraps an authenticated address
func NewCaller(address common.Address) Caller {
	return Caller{address: address}
}

// Address returns the caller's address
func (c Caller) Address() common.Address {
	return c.address
}

// AccessPolicy decides whether a caller may mutate a pair's book
type AccessPolicy interface {
	Authorize(pair *Pair, caller Caller) error
}

// AccessPolicyFunc adapts a function to AccessPolicy
type AccessPolicyFunc func(pair *Pair, caller Caller) error

// Authorize implements AccessPolicy
func (f AccessPolicyFunc) Authorize(pair *Pair, caller Caller) error {
	return f(pair, caller)
}

// AuthorityPolicy admits only the pair's configured authority
type AuthorityPolicy struct{}

// Authorize implements AccessPolicy
func (AuthorityPolicy) Authorize(pair *Pair, caller Caller) error {
	if pair == nil {
		return ErrNotInitialized
	}
	if caller.address != pair.Authority {
		return fmt.Errorf("%w: %s is not the pair authority", ErrInvalidAccess, caller.address.Hex())
	}
	return nil
}
