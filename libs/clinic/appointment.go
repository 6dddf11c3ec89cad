package clinic

import "time"

type Appointment struct {
	ID          string    `json:"id,omitempty"`
	PatientName string    `json:"patient_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Date        Date      `json:"date"`
	Time        *string   `json:"time"`
	Status      Status    `json:"status"`
	DoctorID    string    `json:"doctor_id"`
	CustomerID  string    `json:"customer_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Occupies reports whether the appointment holds a slot: not cancelled and timed.
func (a Appointment) Occupies() bool {
	return a.Status.Occupies() && a.Time != nil && *a.Time != ""
}

func (a Appointment) TimeLabel() string {
	if a.Time == nil {
		return ""
	}
	return *a.Time
}

// Minutes returns the appointment time in minutes after midnight.
func (a Appointment) Minutes() (int, bool) {
	if a.Time == nil {
		return 0, false
	}
	m, err := ParseClock(*a.Time)
	if err != nil {
		return 0, false
	}
	return m, true
}

type Doctor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Speciality    string `json:"speciality"`
	Fee           int64  `json:"fee"`
	WorkStartHour int    `json:"work_start_hour,omitempty"`
	WorkEndHour   int    `json:"work_end_hour,omitempty"`
	SlotMinutes   int    `json:"slot_minutes,omitempty"`
}

// AppointmentInput is the create payload.
type AppointmentInput struct {
	PatientName string  `json:"patient_name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Date        Date    `json:"date"`
	Time        *string `json:"time"`
	Status      Status  `json:"status"`
	DoctorID    string  `json:"doctor_id"`
	CustomerID  string  `json:"customer_id,omitempty"`
}

// AppointmentPatch carries only the fields being changed. A patch that moves the
// appointment to CANCELLED drops its time regardless of Time.
type AppointmentPatch struct {
	PatientName *string `json:"patient_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Date        *Date   `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	Status      *Status `json:"status,omitempty"`
	DoctorID    *string `json:"doctor_id,omitempty"`
	CustomerID  *string `json:"customer_id,omitempty"`
}

func (p AppointmentPatch) IsEmpty() bool {
	return p == AppointmentPatch{}
}

// Apply returns the input that results from patching a.
func (p AppointmentPatch) Apply(a Appointment) AppointmentInput {
	in := a.Input()
	if p.PatientName != nil {
		in.PatientName = *p.PatientName
	}
	if p.Email != nil {
		in.Email = *p.Email
	}
	if p.Phone != nil {
		in.Phone = *p.Phone
	}
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.Time != nil {
		t := *p.Time
		in.Time = &t
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.DoctorID != nil {
		in.DoctorID = *p.DoctorID
	}
	if p.CustomerID != nil {
		in.CustomerID = *p.CustomerID
	}
	if in.Status == StatusCancelled {
		in.Time = nil
	}
	return in
}

func (a Appointment) Input() AppointmentInput {
	in := AppointmentInput{
		PatientName: a.PatientName,
		Email:       a.Email,
		Phone:       a.Phone,
		Date:        a.Date,
		Status:      a.Status,
		DoctorID:    a.DoctorID,
		CustomerID:  a.CustomerID,
	}
	if a.Time != nil {
		t := *a.Time
		in.Time = &t
	}
	return in
}

// StringPtr is a small helper for building optional fields.
func StringPtr(s string) *string { return &s }
