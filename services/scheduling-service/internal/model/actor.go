package model

type ActorRole string

const (
	ActorOwner   ActorRole = "owner"
	ActorVet     ActorRole = "vet"
	ActorTrainer ActorRole = "trainer"
)

// Actor is the authenticated caller. Credential checks happen before the
// core sees it; the core only checks role and ownership.
type Actor struct {
	ID   string
	Role ActorRole
}

func (a Actor) Valid() bool {
	switch a.Role {
	case ActorOwner, ActorVet, ActorTrainer:
		return a.ID != ""
	}
	return false
}

func (a Actor) IsProfessional() bool { return a.Role == ActorVet || a.Role == ActorTrainer }

// ProfessionalRole maps a professional actor to the calendar role it manages.
func (a Actor) ProfessionalRole() Role {
	if a.Role == ActorTrainer {
		return RoleTrainer
	}
	return RoleVet
}

// Owns reports whether a is the professional behind professionalID.
func (a Actor) Owns(professionalID string) bool {
	return a.IsProfessional() && a.ID == professionalID
}
