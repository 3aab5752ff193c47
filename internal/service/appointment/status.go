package appointment

import "github.com/echohealth/echo_backend/internal/repo"

var transitions = map[repo.AppointmentStatus][]repo.AppointmentStatus{
	repo.AppointmentScheduled:   {repo.AppointmentRescheduled, repo.AppointmentCompleted, repo.AppointmentCancelled},
	repo.AppointmentRescheduled: {repo.AppointmentRescheduled, repo.AppointmentCompleted, repo.AppointmentCancelled},
}

// CanTransition reports whether an appointment in status from may move to
// status to. COMPLETED and CANCELLED are terminal.
func CanTransition(from, to repo.AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validStatus(s repo.AppointmentStatus) bool {
	switch s {
	case repo.AppointmentScheduled, repo.AppointmentRescheduled,
		repo.AppointmentCompleted, repo.AppointmentCancelled:
		return true
	}
	return false
}
