// Package guard gatekeeps which caller identity may invoke privileged account
// entry points.
package guard

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
)

// Guard checks callers against one controller identity and the account owner.
// The controller is fixed at construction.
type Guard struct {
	controller common.Address
}

// New creates a Guard for controller.
func New(controller common.Address) Guard {
	return Guard{controller: controller}
}

// Controller returns the controller identity.
func (g Guard) Controller() common.Address {
	return g.controller
}

// RequireController fails unless caller is the controller.
func (g Guard) RequireController(caller common.Address) error {
	if caller == g.controller {
		return nil
	}
	return unauthorized(caller, "controller")
}

// RequireControllerOrOwner fails unless caller is the controller or the
// current owner recorded in state.
func (g Guard) RequireControllerOrOwner(caller common.Address, state *smartaccount.AccountState) error {
	if caller == g.controller {
		return nil
	}
	if state != nil && caller == state.Owner && caller != (common.Address{}) {
		return nil
	}
	return unauthorized(caller, "controller or owner")
}

func unauthorized(caller common.Address, want string) error {
	return smartaccount.NewAccountError(smartaccount.ErrCodeUnauthorized, "caller is not the "+want, smartaccount.ErrUnauthorized).
		WithDetails("caller", caller.Hex())
}
