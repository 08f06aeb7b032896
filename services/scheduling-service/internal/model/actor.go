package model

type Role string

const (
	RoleEmployee Role = "employee"
	RolePatient  Role = "patient"
	RoleAdmin    Role = "adm"
)

// Actor is the authenticated caller. It is passed explicitly to every operation.
type Actor struct {
	ID   string
	Role Role
}

// Patient directory entry: the organization the patient belongs to and the
// practitioner they are assigned to.
type Patient struct {
	ID           string
	Organization string
	Practitioner string
}
