package module

import "PlayCore/internal/env"

// Role is the slot a module fills in an instance.
type Role string

const (
	// RoleController modules drive transport: load, play, pause, seek, volume.
	RoleController Role = "controller"
	// RolePlayer modules render the selected media.
	RolePlayer Role = "player"
	// RoleExtension modules are optional add-ons; zero or more may be active.
	RoleExtension Role = "extension"
)

// Roles lists every role in resolution order.
var Roles = []Role{RoleController, RoleExtension, RolePlayer}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleController, RolePlayer, RoleExtension:
		return true
	}
	return false
}

// Info contains descriptive metadata for a module class.
type Info struct {
	Name        string
	Role        Role
	Description string
	Version     string
	// Requires lists environment capabilities that must all be present before
	// the class predicate is consulted.
	Requires []env.Capability
}
