package clinic

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9()\-\s.]+$`)
)

// FieldErrors maps a JSON field name to a message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "invalid appointment: " + strings.Join(parts, "; ")
}

func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ValidPhone accepts digits with an optional leading +, spaces, dots, dashes and
// parentheses, carrying between 7 and 15 digits.
func ValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phonePattern.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

// ValidateInput checks the shape of an appointment. It returns nil when valid.
func ValidateInput(in AppointmentInput) FieldErrors {
	errs := FieldErrors{}
	if !in.Status.Valid() {
		errs["status"] = "unknown status"
	}
	if strings.TrimSpace(in.PatientName) == "" {
		errs["patient_name"] = "patient name is required"
	}
	if in.Email != "" && !ValidEmail(in.Email) {
		errs["email"] = "email address is not valid"
	}
	if in.Phone != "" && !ValidPhone(in.Phone) {
		errs["phone"] = "phone number is not valid"
	}
	if strings.TrimSpace(in.DoctorID) == "" {
		errs["doctor_id"] = "doctor is required"
	}
	if in.Date.IsZero() {
		errs["date"] = "date is required"
	}
	if in.Status != StatusCancelled {
		if in.Time == nil || *in.Time == "" {
			errs["time"] = "time is required"
		} else if _, err := ParseClock(*in.Time); err != nil {
			errs["time"] = "time must be HH:MM"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
