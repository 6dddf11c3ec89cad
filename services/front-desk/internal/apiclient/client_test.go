package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:8085")
	assert.Error(t, err)
}

func TestClientRequests(t *testing.T) {
	var gotAuth, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/doctors/d1/slots":
			_ = json.NewEncoder(w).Encode([]string{"09:00", "10:00"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/appointments":
			var in clinic.AppointmentInput
			_ = json.NewDecoder(r.Body).Decode(&in)
			gotBody = in.PatientName
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(clinic.Appointment{ID: "a1", PatientName: in.PatientName, Date: in.Date, Time: in.Time, Status: clinic.StatusScheduled, DoctorID: in.DoctorID})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", WithToken("tok"))
	require.NoError(t, err)
	ctx := context.Background()

	labels, err := c.ListAvailableSlots(ctx, "d1", clinic.NewDate(2024, 6, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00"}, labels)
	assert.Equal(t, "date=2024-06-10", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)

	appt, err := c.CreateAppointment(ctx, clinic.AppointmentInput{PatientName: "A. Rao", Date: clinic.NewDate(2024, 6, 10), Time: clinic.StringPtr("09:30"), DoctorID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "a1", appt.ID)
	assert.Equal(t, "A. Rao", gotBody)

	require.NoError(t, c.DeleteAppointment(ctx, "a1"))
}

func TestClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"time slot already booked","fields":{"time":"this time is already booked"}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.UpdateAppointment(context.Background(), "a1", clinic.AppointmentPatch{Time: clinic.StringPtr("09:30")})

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "time slot already booked", apiErr.UserMessage())
	assert.Equal(t, "this time is already booked", apiErr.Fields["time"])
	assert.True(t, IsConflict(err))
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.ListDoctors(context.Background())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}
