package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/desk"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/editor"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/schedule"
	"github.com/spf13/cobra"
)

func (c *cli) dayCommand() *cobra.Command {
	var doctorID string
	cmd := &cobra.Command{
		Use:   "day [YYYY-MM-DD]",
		Short: "Show the slot timeline of one day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			date, err := optionalDate(args, page.Today())
			if err != nil {
				return err
			}
			view, loadErr := page.OpenDay(cmd.Context(), date, doctorID)
			renderDay(c.out, view, page.Roster())
			return loadNotice(loadErr)
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "only this doctor's appointments and working hours")
	return cmd
}

func (c *cli) weekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "week [YYYY-MM-DD]",
		Short: "Show the Monday-to-Sunday week containing a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			date, err := optionalDate(args, page.Today())
			if err != nil {
				return err
			}
			cells, loadErr := page.ShowWeek(cmd.Context(), date)
			renderWeek(c.out, cells)
			return loadNotice(loadErr)
		},
	}
}

func (c *cli) monthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "month [YYYY-MM]",
		Short: "Show the month calendar (default this month)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			today := page.Today()
			year, month := today.Year, today.Month
			if len(args) == 1 {
				t, err := time.Parse("2006-01", args[0])
				if err != nil {
					return fmt.Errorf("invalid month %q: want YYYY-MM", args[0])
				}
				year, month = t.Year(), t.Month()
			}
			grid, loadErr := page.ShowMonth(cmd.Context(), year, month)
			renderMonth(c.out, grid)
			return loadNotice(loadErr)
		},
	}
}

func (c *cli) slotsCommand() *cobra.Command {
	var doctorID string
	cmd := &cobra.Command{
		Use:   "slots YYYY-MM-DD --doctor ID",
		Short: "List the times a doctor can still be booked on a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := clinic.ParseDate(args[0])
			if err != nil {
				return err
			}
			page, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			res, err := page.Availability().Request(cmd.Context(), doctorID, date)
			if err != nil {
				return err
			}
			renderSlots(c.out, res.Slots)
			return nil
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

// changes are the appointment fields a command line may set.
type changes struct {
	patient    string
	email      string
	phone      string
	customerID string
	doctorID   string
	date       string
	time       string
	status     string
}

func (ch *changes) register(cmd *cobra.Command, withSlot bool) {
	f := cmd.Flags()
	f.StringVar(&ch.patient, "patient", "", "patient name")
	f.StringVar(&ch.email, "email", "", "patient email")
	f.StringVar(&ch.phone, "phone", "", "patient phone")
	f.StringVar(&ch.customerID, "customer-id", "", "external customer reference")
	f.StringVar(&ch.status, "status", "", "SCHEDULED, CONFIRMED, COMPLETED, CANCELLED or NO_SHOW")
	if withSlot {
		f.StringVar(&ch.doctorID, "doctor", "", "doctor id")
		f.StringVar(&ch.date, "date", "", "move to this day (YYYY-MM-DD)")
		f.StringVar(&ch.time, "time", "", "move to this time (HH:MM)")
	}
}

// apply pushes the flags the user actually set into the editor. Doctor and day
// go first since they decide which times are offered.
func (ch *changes) apply(ctx context.Context, cmd *cobra.Command, ed *editor.Editor) error {
	set := cmd.Flags().Changed
	if set("doctor") {
		if err := ed.SetDoctor(ctx, ch.doctorID); err != nil {
			return err
		}
	}
	if set("date") {
		d, err := clinic.ParseDate(ch.date)
		if err != nil {
			return err
		}
		if err := ed.SetDate(ctx, d); err != nil {
			return err
		}
	}
	if set("status") {
		if err := ed.SetStatus(ctx, clinic.Status(ch.status)); err != nil {
			return err
		}
	}
	if set("time") {
		if err := ed.SetTime(ch.time); err != nil {
			return err
		}
	}
	fields := []struct {
		name string
		val  string
		fn   func(string) error
	}{
		{"patient", ch.patient, ed.SetPatientName},
		{"email", ch.email, ed.SetEmail},
		{"phone", ch.phone, ed.SetPhone},
		{"customer-id", ch.customerID, ed.SetCustomerID},
	}
	for _, f := range fields {
		if !set(f.name) {
			continue
		}
		if err := f.fn(f.val); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) bookCommand() *cobra.Command {
	var ch changes
	cmd := &cobra.Command{
		Use:   "book YYYY-MM-DD HH:MM --patient NAME",
		Short: "Book a free slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			date, err := clinic.ParseDate(args[0])
			if err != nil {
				return err
			}
			label := args[1]
			page, err := c.open(ctx)
			if err != nil {
				return err
			}
			if _, err := page.OpenDay(ctx, date, ch.doctorID); err != nil {
				return loadNotice(err)
			}
			if err := page.Day().SelectFreeSlot(ctx, label); err != nil {
				return fmt.Errorf("cannot book %s at %s: %w", date, label, err)
			}
			ed := page.Editor()
			v := ed.Snapshot()
			if v.State != editor.Creating {
				return errors.New("booking could not be started")
			}
			if v.Draft.Time == nil {
				if v.SlotErr != nil {
					return v.SlotErr
				}
				return fmt.Errorf("%s is no longer free for doctor %s on %s", label, v.Draft.DoctorID, date)
			}
			if err := ch.apply(ctx, cmd, ed); err != nil {
				return explain(err)
			}
			a, err := ed.Submit(ctx)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "Booked %s: %s with %s on %s at %s\n",
				a.ID, a.PatientName, doctorName(page.Roster(), a.DoctorID), a.Date, a.TimeLabel())
			return nil
		},
	}
	ch.register(cmd, false)
	cmd.Flags().StringVar(&ch.doctorID, "doctor", "", "doctor id (default the first doctor)")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

// openExisting loads the day of id and opens it in the editor, through the day
// timeline when the appointment holds a slot and through its calendar card
// otherwise.
func (c *cli) openExisting(ctx context.Context, id string, on clinic.Date) (*desk.Page, error) {
	page, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := page.OpenDay(ctx, on, ""); err != nil {
		return nil, loadNotice(err)
	}
	err = page.Day().SelectAppointment(ctx, id)
	if errors.Is(err, schedule.ErrNoSuchAppt) {
		a, ok := page.Store().Find(id)
		if !ok || a.Date != on {
			return nil, fmt.Errorf("no appointment %s on %s", id, on)
		}
		page.Month().ClickCard(ctx, a)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	switch page.Editor().State() {
	case editor.Editing:
		return page, nil
	case editor.Viewing:
		return nil, fmt.Errorf("appointment %s: %w", id, editor.ErrReadOnly)
	default:
		return nil, fmt.Errorf("appointment %s could not be opened", id)
	}
}

func onFlag(cmd *cobra.Command, on *string) {
	cmd.Flags().StringVar(on, "on", "", "day the appointment is on (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("on")
}

func (c *cli) editCommand() *cobra.Command {
	var ch changes
	var on string
	cmd := &cobra.Command{
		Use:   "edit ID --on YYYY-MM-DD [changes]",
		Short: "Change an upcoming appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day, err := clinic.ParseDate(on)
			if err != nil {
				return err
			}
			page, err := c.openExisting(ctx, args[0], day)
			if err != nil {
				return err
			}
			ed := page.Editor()
			if err := ch.apply(ctx, cmd, ed); err != nil {
				return explain(err)
			}
			a, err := ed.Submit(ctx)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "Updated %s: %s on %s %s\n", a.ID, a.Status, a.Date, a.TimeLabel())
			return nil
		},
	}
	ch.register(cmd, true)
	onFlag(cmd, &on)
	return cmd
}

func (c *cli) cancelCommand() *cobra.Command {
	var on string
	cmd := &cobra.Command{
		Use:   "cancel ID --on YYYY-MM-DD",
		Short: "Cancel an appointment and free its slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day, err := clinic.ParseDate(on)
			if err != nil {
				return err
			}
			page, err := c.openExisting(ctx, args[0], day)
			if err != nil {
				return err
			}
			ed := page.Editor()
			if err := ed.SetStatus(ctx, clinic.StatusCancelled); err != nil {
				return explain(err)
			}
			if _, err := ed.Submit(ctx); err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "Cancelled %s\n", args[0])
			return nil
		},
	}
	onFlag(cmd, &on)
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	var on string
	cmd := &cobra.Command{
		Use:   "delete ID --on YYYY-MM-DD",
		Short: "Delete an upcoming appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			day, err := clinic.ParseDate(on)
			if err != nil {
				return err
			}
			page, err := c.openExisting(ctx, args[0], day)
			if err != nil {
				return err
			}
			if err := page.Editor().Delete(ctx); err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "Deleted %s\n", args[0])
			return nil
		},
	}
	onFlag(cmd, &on)
	return cmd
}

func (c *cli) tokenCommand() *cobra.Command {
	var sub, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token --sub NAME",
		Short: "Mint a staff token for clinic-service write calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := c.v.GetString("staff_secret")
			if secret == "" {
				return errors.New("staff secret is required (--staff-secret or FRONT_DESK_STAFF_SECRET)")
			}
			tok, err := auth.Issue(sub, role, ttl, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "staff member the token is for")
	cmd.Flags().StringVar(&role, "role", auth.RoleReceptionist, "admin, receptionist or doctor")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func optionalDate(args []string, today clinic.Date) (clinic.Date, error) {
	if len(args) == 0 {
		return today, nil
	}
	return clinic.ParseDate(args[0])
}

// loadNotice turns a failed calendar load into the retry hint shown under the
// (empty) calendar.
func loadNotice(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("appointments could not be loaded, run the command again to retry: %w", err)
}

// explain rewrites editor errors into what the desk should read.
func explain(err error) error {
	var pe *editor.PersistenceError
	if errors.As(err, &pe) {
		if fields := pe.Fields(); len(fields) > 0 {
			return fmt.Errorf("%s (%v)", pe.Message(), editor.ValidationErrors(fields))
		}
		return errors.New(pe.Message())
	}
	return err
}
