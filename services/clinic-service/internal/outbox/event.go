package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
)

// Appointment lifecycle topics. The Kafka topic name equals EventType.
const (
	TopicAppointmentCreated = "clinic.appointment.created.v1"
	TopicAppointmentUpdated = "clinic.appointment.updated.v1"
	TopicAppointmentDeleted = "clinic.appointment.deleted.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID string           `json:"appointment_id"`
	DoctorID      string           `json:"doctor_id"`
	Date          clinic.Date      `json:"date"`
	Time          *string          `json:"time"`
	Status        clinic.Status    `json:"status"`
	PatientName   string           `json:"patient_name,omitempty"`
	Email         string           `json:"email,omitempty"`
	Phone         string           `json:"phone,omitempty"`
	Previous      *appointmentSlot `json:"previous,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

type appointmentSlot struct {
	DoctorID string        `json:"doctor_id"`
	Date     clinic.Date   `json:"date"`
	Time     *string       `json:"time"`
	Status   clinic.Status `json:"status"`
}

// AppointmentEvent builds the event for a create, update or delete of a. prev is
// the state before an update and is ignored otherwise.
func AppointmentEvent(topic string, a clinic.Appointment, prev *clinic.Appointment, at time.Time) (Event, error) {
	p := appointmentPayload{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		Date:          a.Date,
		Time:          a.Time,
		Status:        a.Status,
		PatientName:   a.PatientName,
		Email:         a.Email,
		Phone:         a.Phone,
		OccurredAt:    at.UTC(),
	}
	if prev != nil && topic == TopicAppointmentUpdated {
		p.Previous = &appointmentSlot{DoctorID: prev.DoctorID, Date: prev.Date, Time: prev.Time, Status: prev.Status}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     topic,
		Payload:       raw,
	}, nil
}
