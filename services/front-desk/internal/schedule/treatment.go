package schedule

import "github.com/md-rashed-zaman/clinicdesk/libs/clinic"

// Treatment is how a status is drawn on a card.
type Treatment struct {
	Label  string
	Color  string
	Icon   string
	Strike bool
}

var treatments = map[clinic.Status]Treatment{
	clinic.StatusScheduled: {Label: "Scheduled", Color: "blue", Icon: "○"},
	clinic.StatusConfirmed: {Label: "Confirmed", Color: "green", Icon: "✓"},
	clinic.StatusCompleted: {Label: "Completed", Color: "gray", Icon: "●"},
	clinic.StatusCancelled: {Label: "Cancelled", Color: "red", Icon: "✗", Strike: true},
	clinic.StatusNoShow:    {Label: "No-show", Color: "orange", Icon: "!"},
}

// TreatmentFor maps a status to its treatment. ok is false only for values
// outside the status enum.
func TreatmentFor(s clinic.Status) (Treatment, bool) {
	t, ok := treatments[s]
	return t, ok
}
