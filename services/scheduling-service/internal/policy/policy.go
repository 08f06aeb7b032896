// Package policy decides whether an actor owns an appointment. One table maps
// each role to the appointment field that must equal the actor's id.
package policy

import "github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"

type Field string

const (
	FieldPractitioner Field = "practitioner"
	FieldPatient      Field = "patient"
	FieldOrganization Field = "organization"
)

var table = map[model.Role]Field{
	model.RoleEmployee: FieldPractitioner,
	model.RolePatient:  FieldPatient,
	model.RoleAdmin:    FieldOrganization,
}

// FieldFor returns the field owned by role, or false for unknown roles.
func FieldFor(role model.Role) (Field, bool) {
	f, ok := table[role]
	return f, ok
}

// Value reads field from appt.
func Value(appt model.Appointment, f Field) string {
	switch f {
	case FieldPractitioner:
		return appt.Practitioner
	case FieldPatient:
		return appt.Patient
	case FieldOrganization:
		return appt.Organization
	}
	return ""
}

// Authorize reports whether actor owns appt. Unknown roles, empty ids and
// empty fields are denied.
func Authorize(appt model.Appointment, actor model.Actor) bool {
	f, ok := FieldFor(actor.Role)
	if !ok || actor.ID == "" {
		return false
	}
	v := Value(appt, f)
	return v != "" && v == actor.ID
}

// CanClaim covers the patient-of relation used when scheduling an unclaimed
// slot: the patient must belong to the slot's organization.
func CanClaim(slot model.Appointment, patient model.Patient) bool {
	return patient.ID != "" && patient.Organization != "" && patient.Organization == slot.Organization
}
