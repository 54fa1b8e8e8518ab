package accounts

// Capability is a named permission a principal either holds or not
type Capability = string

const (
	// CapabilityAdmin gates every account administration operation
	CapabilityAdmin Capability = "admin"
	// CapabilityView allows read-only access to account summaries
	CapabilityView Capability = "view"
)

// Principal is the authenticated actor invoking an operation
type Principal struct {
	ID           string
	Username     string
	Capabilities []Capability
}

// HasCapability checks whether the principal holds the named capability
func (p Principal) HasCapability(capability Capability) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the admin capability
func (p Principal) IsAdmin() bool {
	return p.HasCapability(CapabilityAdmin)
}

// ActorRef converts the principal into an audit actor reference
func (p Principal) ActorRef() ActorRef {
	return ActorRef{ID: p.ID, Type: "principal"}
}

// CapabilitiesFromRole maps a session role claim onto capabilities.
// Roles follow the guest < member < admin < owner hierarchy.
func CapabilitiesFromRole(role string) []Capability {
	switch role {
	case "admin", "owner":
		return []Capability{CapabilityView, CapabilityAdmin}
	case "member", "guest":
		return []Capability{CapabilityView}
	default:
		return nil
	}
}
