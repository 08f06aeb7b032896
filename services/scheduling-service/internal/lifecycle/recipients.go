package lifecycle

import "github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"

// Party is a participant of an appointment that may receive a notification.
type Party string

const (
	PartyPractitioner Party = "employee"
	PartyPatient      Party = "patient"
)

// Recipients resolves a rule's effects against the acting role. The result is
// ordered (practitioner first) and free of duplicates.
func Recipients(effects []Effect, actor model.Role) []Party {
	var practitioner, patient bool
	for _, e := range effects {
		switch e {
		case NotifyPractitioner:
			practitioner = true
		case NotifyPatient:
			patient = true
		case NotifyCounterpart:
			switch actor {
			case model.RoleEmployee:
				patient = true
			case model.RolePatient:
				practitioner = true
			default:
				practitioner, patient = true, true
			}
		}
	}

	var out []Party
	if practitioner {
		out = append(out, PartyPractitioner)
	}
	if patient {
		out = append(out, PartyPatient)
	}
	return out
}
