package core

import "fmt"

// Ownable is the single access-control capability for administrative entry
// points. Components embed it and call Authorize before any privileged effect.
type Ownable struct {
	owner Address
}

// NewOwnable returns an Ownable held by owner.
func NewOwnable(owner Address) Ownable {
	return Ownable{owner: owner}
}

// Owner returns the administrative identity.
func (o Ownable) Owner() Address { return o.owner }

// Authorize rejects callers other than the owner.
func (o Ownable) Authorize(caller Address) error {
	if o.owner.IsZero() || caller != o.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}
	return nil
}
