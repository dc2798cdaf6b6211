package reschedule

import "github.com/bookwell/scheduling/internal/booking"

// RequiresRefund decides whether a disrupted appointment carries a refund
// obligation: the original must have been paid and the cause must be
// attributable to the provider. A client no-show or client-requested move on
// a paid appointment does not by itself create one. Executing the refund is
// the payment collaborator's job.
func RequiresRefund(original *booking.Appointment, cause Reason) bool {
	if original == nil || !original.Paid {
		return false
	}

	switch cause {
	case ReasonProviderNoShow, ReasonMedicalEmergency, ReasonSchedulingError:
		return true
	default:
		return false
	}
}
