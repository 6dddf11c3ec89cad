package editor

import (
	"errors"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/apiclient"
)

var (
	ErrReadOnly = errors.New("appointment is in the past and cannot be changed")
	ErrNotOpen  = errors.New("editor is not open")
	ErrBusy     = errors.New("a save is already in progress")

	// ErrSessionClosed is returned by a save that finished after the editor was
	// closed. The server may have applied it; the editor ignores the outcome.
	ErrSessionClosed = errors.New("editor was closed before the save finished")
)

// ValidationErrors maps a field name to what is wrong with it. They are found
// locally and block the save.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "check the form: " + strings.Join(parts, "; ")
}

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// PersistenceError is a failed save. The draft is kept so the user can retry.
type PersistenceError struct {
	Op  Op
	Err error
}

func (e *PersistenceError) Error() string {
	return "could not " + string(e.Op) + " appointment: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Message is the notice shown to the user, the server's wording when it gave one.
func (e *PersistenceError) Message() string {
	var apiErr *apiclient.Error
	if errors.As(e.Err, &apiErr) {
		return apiErr.UserMessage()
	}
	return "Could not " + string(e.Op) + " the appointment. Please try again."
}

// Fields returns the per-field rejections the server attached, if any.
func (e *PersistenceError) Fields() map[string]string {
	var apiErr *apiclient.Error
	if errors.As(e.Err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}
