// Package access holds the single capability check evaluated before every
// privileged operation.
package access

import (
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

type Capability string

const (
	// CapAdmin: superuser, Admin group member or approved admin.
	CapAdmin Capability = "admin"
	// CapAdminOrDoctor: CapAdmin or an approved, active doctor.
	CapAdminOrDoctor Capability = "admin_or_doctor"
	// CapSuperuser: the raw superuser flag only. Workflow-approved admins
	// never hold it.
	CapSuperuser Capability = "superuser"
	// CapDoctor: an approved doctor.
	CapDoctor Capability = "doctor"
	// CapPatient: any account holding a patient profile.
	CapPatient Capability = "patient"
)

// Grant names the fact that satisfied a capability.
type Grant string

const (
	GrantNone           Grant = ""
	GrantSuperuser      Grant = "superuser"
	GrantAdminGroup     Grant = "admin_group"
	GrantApprovedAdmin  Grant = "approved_admin"
	GrantApprovedDoctor Grant = "approved_doctor"
	GrantPatient        Grant = "patient"
)

// Decision is the typed result of a capability check.
type Decision struct {
	Allowed    bool
	Capability Capability
	Grant      Grant
	Reason     string
}

func allow(c Capability, g Grant) Decision {
	return Decision{Allowed: true, Capability: c, Grant: g}
}

func deny(c Capability, reason string) Decision {
	return Decision{Capability: c, Reason: reason}
}

// Check evaluates capability c for actor. A nil actor is denied everything.
func Check(actor *identity.Actor, c Capability) Decision {
	if actor == nil || actor.Account == nil {
		return deny(c, "please log in to continue")
	}

	switch c {
	case CapSuperuser:
		if actor.IsSuperuser() {
			return allow(c, GrantSuperuser)
		}
		return deny(c, "only the superuser can approve or reject administrators")

	case CapAdmin:
		if g := adminGrant(actor); g != GrantNone {
			return allow(c, g)
		}
		return deny(c, "you are not authorized to perform this action")

	case CapAdminOrDoctor:
		if g := adminGrant(actor); g != GrantNone {
			return allow(c, g)
		}
		if d := actor.Doctor; d != nil && d.IsApproved && d.Status {
			return allow(c, GrantApprovedDoctor)
		}
		return deny(c, "you are not authorized to perform this action")

	case CapDoctor:
		if d := actor.Doctor; d != nil && d.IsApproved {
			return allow(c, GrantApprovedDoctor)
		}
		if actor.Doctor != nil {
			return deny(c, "your doctor account is awaiting approval")
		}
		return deny(c, "only doctors can perform this action")

	case CapPatient:
		if actor.Patient != nil {
			return allow(c, GrantPatient)
		}
		return deny(c, "only patients can perform this action")
	}
	return deny(c, "unknown capability")
}

func adminGrant(actor *identity.Actor) Grant {
	switch {
	case actor.IsSuperuser():
		return GrantSuperuser
	case actor.InAdminGroup:
		return GrantAdminGroup
	case actor.Admin != nil && actor.Admin.IsApproved:
		return GrantApprovedAdmin
	default:
		return GrantNone
	}
}

// Require returns an authorization error carrying the decision reason when
// actor lacks c.
func Require(actor *identity.Actor, c Capability) (Decision, error) {
	d := Check(actor, c)
	if !d.Allowed {
		return d, apperr.Authorization(d.Reason)
	}
	return d, nil
}

// IsPrivileged reports whether actor holds CapAdmin.
func IsPrivileged(actor *identity.Actor) bool {
	return Check(actor, CapAdmin).Allowed
}

// IsPrivilegedOrDoctor reports whether actor holds CapAdminOrDoctor.
func IsPrivilegedOrDoctor(actor *identity.Actor) bool {
	return Check(actor, CapAdminOrDoctor).Allowed
}
