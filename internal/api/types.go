package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/reschedule"
	"github.com/bookwell/scheduling/internal/schedule"
)

// Availability template

type CreateBlockRequest struct {
	Weekday             int `json:"weekday"`
	StartMinute         int `json:"start_minute"`
	EndMinute           int `json:"end_minute"`
	SlotDurationMinutes int `json:"slot_duration_minutes"`
}

type UpdateBlockRequest struct {
	StartMinute         *int  `json:"start_minute,omitempty"`
	EndMinute           *int  `json:"end_minute,omitempty"`
	SlotDurationMinutes *int  `json:"slot_duration_minutes,omitempty"`
	Active              *bool `json:"active,omitempty"`
}

type BlockResponse struct {
	ID                  uuid.UUID `json:"id"`
	ProviderID          uuid.UUID `json:"provider_id"`
	Weekday             int       `json:"weekday"`
	StartMinute         int       `json:"start_minute"`
	EndMinute           int       `json:"end_minute"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	Active              bool      `json:"active"`
}

func toBlockResponse(b *schedule.WeeklyAvailabilityBlock) BlockResponse {
	return BlockResponse{
		ID:                  b.ID,
		ProviderID:          b.ProviderID,
		Weekday:             int(b.Weekday),
		StartMinute:         b.StartMinute,
		EndMinute:           b.EndMinute,
		SlotDurationMinutes: b.SlotDurationMinutes,
		Active:              b.Active,
	}
}

// Day schedule

type SlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type DayScheduleResponse struct {
	ProviderID     uuid.UUID      `json:"provider_id"`
	Date           string         `json:"date"`
	Slots          []SlotResponse `json:"slots"`
	TotalSlots     int            `json:"total_slots"`
	AvailableSlots int            `json:"available_slots"`
	OccupiedSlots  int            `json:"occupied_slots"`
	Unavailable    string         `json:"unavailable_reason,omitempty"`
}

func toDayScheduleResponse(ds schedule.DaySchedule) DayScheduleResponse {
	slots := make([]SlotResponse, 0, len(ds.Slots))
	for _, s := range ds.Slots {
		slots = append(slots, SlotResponse{Start: s.Start, End: s.End, Available: s.Available})
	}
	return DayScheduleResponse{
		ProviderID:     ds.ProviderID,
		Date:           ds.Date.Format("2006-01-02"),
		Slots:          slots,
		TotalSlots:     ds.TotalSlots,
		AvailableSlots: ds.AvailableSlots,
		OccupiedSlots:  ds.OccupiedSlots,
		Unavailable:    string(ds.Unavailable),
	}
}

// Appointments

type CreateAppointmentRequest struct {
	ProviderID string    `json:"provider_id"`
	ClientID   string    `json:"client_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     string    `json:"reason"`
	Paid       bool      `json:"paid"`
	CostCents  int64     `json:"cost_cents"`
}

type CancelAppointmentRequest struct {
	ActorRole string `json:"actor_role"`
	Reason    string `json:"reason"`
}

type NoShowRequest struct {
	WhoMissed string `json:"who_missed"`
	Reason    string `json:"reason"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	ClientID           uuid.UUID `json:"client_id"`
	Start              time.Time `json:"starts_at"`
	End                time.Time `json:"ends_at"`
	Status             string    `json:"status"`
	Paid               bool      `json:"paid"`
	CostCents          int64     `json:"cost_cents"`
	Reason             string    `json:"reason"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	CancelledBy        *string   `json:"cancelled_by,omitempty"`
	NoShowBy           *string   `json:"no_show_by,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		ProviderID:         a.ProviderID,
		ClientID:           a.ClientID,
		Start:              a.Start,
		End:                a.End,
		Status:             string(a.Status),
		Paid:               a.Paid,
		CostCents:          a.CostCents,
		Reason:             a.Reason,
		CancellationReason: a.CancellationReason,
	}
	if a.CancelledBy != nil {
		s := string(*a.CancelledBy)
		resp.CancelledBy = &s
	}
	if a.NoShowBy != nil {
		s := string(*a.NoShowBy)
		resp.NoShowBy = &s
	}
	return resp
}

type NoShowResponse struct {
	Appointment       AppointmentResponse        `json:"appointment"`
	RescheduleRequest *RescheduleRequestResponse `json:"reschedule_request,omitempty"`
}

// Reschedule requests

type ManualRescheduleRequest struct {
	OriginalAppointmentID string      `json:"original_appointment_id"`
	RequesterID           string      `json:"requester_id"`
	RequesterRole         string      `json:"requester_role"`
	Reason                string      `json:"reason"`
	Description           string      `json:"description"`
	Justification         string      `json:"justification"`
	ProposedDates         []time.Time `json:"proposed_dates"`
}

type ApproveRescheduleRequest struct {
	ApproverRole      string    `json:"approver_role"`
	SelectedDate      time.Time `json:"selected_date"`
	CreateReplacement bool      `json:"create_replacement"`
}

type RejectRescheduleRequest struct {
	RejecterRole string `json:"rejecter_role"`
	Reason       string `json:"reason"`
}

type CancelRescheduleRequest struct {
	ActorRole string `json:"actor_role"`
	Reason    string `json:"reason"`
}

type RescheduleRequestResponse struct {
	ID                       uuid.UUID   `json:"id"`
	OriginalAppointmentID    uuid.UUID   `json:"original_appointment_id"`
	RequesterID              uuid.UUID   `json:"requester_id"`
	RequesterRole            string      `json:"requester_role"`
	Reason                   string      `json:"reason"`
	Description              string      `json:"description,omitempty"`
	Justification            string      `json:"justification,omitempty"`
	ProposedDates            []time.Time `json:"proposed_dates"`
	SelectedDate             *time.Time  `json:"selected_date,omitempty"`
	Status                   string      `json:"status"`
	ReplacementAppointmentID *uuid.UUID  `json:"replacement_appointment_id,omitempty"`
	RefundRequired           bool        `json:"refund_required"`
	RefundProcessed          bool        `json:"refund_processed"`
	RejectionReason          *string     `json:"rejection_reason,omitempty"`
	ApprovedAt               *time.Time  `json:"approved_at,omitempty"`
	RejectedAt               *time.Time  `json:"rejected_at,omitempty"`
	CreatedAt                time.Time   `json:"created_at"`
}

func toRescheduleResponse(r *reschedule.RescheduleRequest) RescheduleRequestResponse {
	return RescheduleRequestResponse{
		ID:                       r.ID,
		OriginalAppointmentID:    r.OriginalAppointmentID,
		RequesterID:              r.RequesterID,
		RequesterRole:            string(r.RequesterRole),
		Reason:                   string(r.Reason),
		Description:              r.Description,
		Justification:            r.Justification,
		ProposedDates:            r.ProposedDates,
		SelectedDate:             r.SelectedDate,
		Status:                   string(r.Status),
		ReplacementAppointmentID: r.ReplacementAppointmentID,
		RefundRequired:           r.RefundRequired,
		RefundProcessed:          r.RefundProcessed,
		RejectionReason:          r.RejectionReason,
		ApprovedAt:               r.ApprovedAt,
		RejectedAt:               r.RejectedAt,
		CreatedAt:                r.CreatedAt,
	}
}

type RescheduleListResponse struct {
	Requests []RescheduleRequestResponse `json:"requests"`
	Total    int                         `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}
