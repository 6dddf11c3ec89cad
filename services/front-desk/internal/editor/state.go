package editor

import (
	"errors"
	"fmt"
)

// State of the appointment editor.
type State int

const (
	Closed State = iota
	Creating
	Editing
	Viewing
	Submitting
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Creating:
		return "creating"
	case Editing:
		return "editing"
	case Viewing:
		return "viewing"
	case Submitting:
		return "submitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type event string

const (
	evOpenCreate   event = "open_create"
	evOpenEdit     event = "open_edit"
	evOpenView     event = "open_view"
	evSubmit       event = "submit"
	evDelete       event = "delete"
	evCreated      event = "created"
	evUpdated      event = "updated"
	evDeleted      event = "deleted"
	evCreateFailed event = "create_failed"
	evUpdateFailed event = "update_failed"
	evDeleteFailed event = "delete_failed"
	evClose        event = "close"
)

var ErrInvalidTransition = errors.New("invalid editor transition")

// transitions is the whole editor lifecycle. Anything not listed is rejected.
var transitions = map[State]map[event]State{
	Closed: {
		evOpenCreate: Creating,
		evOpenEdit:   Editing,
		evOpenView:   Viewing,
	},
	Creating: {
		evSubmit: Submitting,
		evClose:  Closed,
	},
	Editing: {
		evSubmit: Submitting,
		evDelete: Submitting,
		evClose:  Closed,
	},
	Viewing: {
		evClose: Closed,
	},
	Submitting: {
		evCreated:      Closed,
		evUpdated:      Closed,
		evDeleted:      Closed,
		evCreateFailed: Creating,
		evUpdateFailed: Editing,
		evDeleteFailed: Editing,
		evClose:        Closed,
	},
}

func next(from State, ev event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}
