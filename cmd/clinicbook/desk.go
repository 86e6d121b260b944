package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"clinicbook/internal/config"
	"clinicbook/internal/domain"
	"clinicbook/internal/service/appointments"
)

type deskService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Search(ctx context.Context, term string) ([]domain.Appointment, error)
	DeleteByID(ctx context.Context, appointmentID int64) (domain.Appointment, error)
	Availability(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error)
	TimeSlots() domain.TimeSlots
}

// deskOpener connects to the store for one command and returns a release func.
type deskOpener func(ctx context.Context, stderr io.Writer) (deskService, func(), error)

func openDesk(ctx context.Context, stderr io.Writer) (deskService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := parseLogLevel(cfg.LogLevel)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	a, err := openApp(ctx, cfg, newLogger(stderr, level), prometheus.NewRegistry())
	if err != nil {
		return nil, nil, err
	}
	return a.svc, a.Close, nil
}

// withDesk runs fn against a freshly opened service and always releases it.
func withDesk(cmd *cobra.Command, open deskOpener, fn func(ctx context.Context, svc deskService) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, release, err := open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, svc)
}

func deskCmds(open deskOpener) []*cobra.Command {
	return []*cobra.Command{
		bookCmd(open),
		cancelCmd(open),
		listCmd(open),
		searchCmd(open),
		deleteCmd(open),
		slotsCmd(open),
	}
}

func bookCmd(open deskOpener) *cobra.Command {
	var in appointments.CreateInput
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd, open, func(ctx context.Context, svc deskService) error {
				appt, err := svc.Create(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appointment %d booked.\n", appt.ID)
				return printAppointments(cmd.OutOrStdout(), []domain.Appointment{appt})
			})
		},
	}
	cmd.Flags().StringVar(&in.PatientName, "patient-name", "", "Patient name")
	cmd.Flags().StringVar(&in.PatientID, "patient-id", "", "Patient ID")
	cmd.Flags().StringVar(&in.DoctorName, "doctor", "", "Doctor name")
	cmd.Flags().StringVar(&in.AppointmentDate, "date", "", "Appointment date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.TimeSlot, "slot", "", `Time slot, e.g. "09:00 AM - 10:00 AM"`)
	return cmd
}

func cancelCmd(open deskOpener) *cobra.Command {
	var in appointments.CancelInput
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an appointment by patient, date and slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd, open, func(ctx context.Context, svc deskService) error {
				appt, err := svc.Cancel(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appointment %d cancelled.\n", appt.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.PatientID, "patient-id", "", "Patient ID")
	cmd.Flags().StringVar(&in.AppointmentDate, "date", "", "Appointment date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.TimeSlot, "slot", "", "Time slot")
	return cmd
}

func listCmd(open deskOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all appointments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd, open, func(ctx context.Context, svc deskService) error {
				appts, err := svc.List(ctx)
				if err != nil {
					return err
				}
				return printAppointments(cmd.OutOrStdout(), appts)
			})
		},
	}
}

func searchCmd(open deskOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "search TERM",
		Short: "Find appointments by doctor name or date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd, open, func(ctx context.Context, svc deskService) error {
				appts, err := svc.Search(ctx, args[0])
				if err != nil {
					return err
				}
				if len(appts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No results.")
					return nil
				}
				return printAppointments(cmd.OutOrStdout(), appts)
			})
		},
	}
}

func deleteCmd(open deskOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an appointment by its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid appointment id %q", args[0])
			}
			return withDesk(cmd, open, func(ctx context.Context, svc deskService) error {
				appt, err := svc.DeleteByID(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appointment %d deleted.\n", appt.ID)
				return nil
			})
		},
	}
}

func slotsCmd(open deskOpener) *cobra.Command {
	var doctor, date string
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show clinic time slots, or free slots for a doctor on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd, open, func(ctx context.Context, svc deskService) error {
				if doctor == "" && date == "" {
					return printSlots(cmd.OutOrStdout(), svc.TimeSlots())
				}
				free, err := svc.Availability(ctx, doctor, date)
				if err != nil {
					return err
				}
				if len(free) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No free slots.")
					return nil
				}
				return printSlots(cmd.OutOrStdout(), free)
			})
		},
	}
	cmd.Flags().StringVar(&doctor, "doctor", "", "Doctor name")
	cmd.Flags().StringVar(&date, "date", "", "Appointment date (YYYY-MM-DD)")
	return cmd
}

func printAppointments(w io.Writer, appts []domain.Appointment) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT ID\tPATIENT\tDOCTOR\tDATE\tTIME SLOT")
	for _, a := range appts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.PatientID, a.PatientName, a.DoctorName, a.AppointmentDate, a.TimeSlot)
	}
	return tw.Flush()
}

func printSlots(w io.Writer, slots []domain.TimeSlot) error {
	for _, s := range slots {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}
	return nil
}
