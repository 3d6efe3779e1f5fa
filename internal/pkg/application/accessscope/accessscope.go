package accessscope

import (
	"github.com/labforge/equipment-mgmt/pkg/types"
)

type Kind int

const (
	KindDenied Kind = iota
	KindUnrestricted
	KindOrgScoped
	KindUnitScoped
)

// Scope describes which records and realtime topics an actor may see. It is
// translated into a storage predicate only at the storage boundary, so that
// policy logic stays free of query vocabulary.
type Scope struct {
	Kind   Kind
	OrgID  string
	UnitID string
}

func Unrestricted() Scope {
	return Scope{Kind: KindUnrestricted}
}

func OrgScoped(orgID string) Scope {
	return Scope{Kind: KindOrgScoped, OrgID: orgID}
}

func UnitScoped(unitID string) Scope {
	return Scope{Kind: KindUnitScoped, UnitID: unitID}
}

func Denied() Scope {
	return Scope{Kind: KindDenied}
}

func (s Scope) IsDenied() bool {
	return s.Kind == KindDenied
}

// Resolve maps an actor to its visibility scope. Missing context always
// narrows access, never widens it: an OrgAdmin without an organisation and a
// UnitOperator without a unit are both denied, as is any unknown role.
func Resolve(actor types.Actor) Scope {
	switch actor.Role {
	case types.RoleOwner:
		return Unrestricted()
	case types.RoleOrgAdmin:
		if actor.OrgID == "" {
			return Denied()
		}
		return OrgScoped(actor.OrgID)
	case types.RoleUnitOperator:
		if actor.UnitID == "" {
			return Denied()
		}
		return UnitScoped(actor.UnitID)
	default:
		return Denied()
	}
}
