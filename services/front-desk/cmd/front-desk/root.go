package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/metrics"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/apiclient"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/desk"
	"github.com/md-rashed-zaman/clinicdesk/services/front-desk/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// deps are the process edges, swapped out in tests.
type deps struct {
	out     io.Writer
	errOut  io.Writer
	now     func() time.Time
	backend func(apiURL, token string) (desk.Backend, error)
}

func defaultDeps() deps {
	return deps{
		out:    os.Stdout,
		errOut: os.Stderr,
		now:    time.Now,
		backend: func(apiURL, token string) (desk.Backend, error) {
			c, err := apiclient.New(apiURL, apiclient.WithToken(token))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

type cli struct {
	deps
	v *viper.Viper

	logger  *slog.Logger
	loc     *time.Location
	window  slots.Window
	reg     *prometheus.Registry
	metrics *metrics.SchedulingMetrics
}

var boundFlags = []string{
	"api-url", "token", "timezone", "start-hour", "end-hour", "slot-interval",
	"cell-cap", "fetch-timeout", "log-level", "metrics", "staff-secret",
}

func newRootCommand(d deps) *cobra.Command {
	c := &cli{deps: d, v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "front-desk",
		Short:         "Clinic front desk: browse the calendar, book and edit appointments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cfgFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !c.v.GetBool("metrics") {
				return nil
			}
			return c.dumpMetrics()
		},
	}
	root.SetOut(d.out)
	root.SetErr(d.errOut)

	f := root.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	f.String("api-url", "http://localhost:8085", "clinic-service base URL")
	f.String("token", "", "staff bearer token sent on every call")
	f.String("timezone", "Local", "clinic time zone, IANA name")
	f.Int("start-hour", 9, "default working day start hour")
	f.Int("end-hour", 17, "default working day end hour (exclusive)")
	f.Int("slot-interval", 30, "default slot length in minutes")
	f.Int("cell-cap", schedule.DefaultCellCap, "appointments shown per calendar cell")
	f.Duration("fetch-timeout", 5*time.Second, "availability request timeout")
	f.String("log-level", "warn", "debug, info, warn or error")
	f.Bool("metrics", false, "print client metrics after the command")
	f.String("staff-secret", "", "HS256 secret used by the token command")
	for _, name := range boundFlags {
		_ = c.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	c.v.SetEnvPrefix("FRONT_DESK")
	c.v.AutomaticEnv()

	root.AddCommand(
		c.dayCommand(),
		c.weekCommand(),
		c.monthCommand(),
		c.slotsCommand(),
		c.bookCommand(),
		c.editCommand(),
		c.cancelCommand(),
		c.deleteCommand(),
		c.tokenCommand(),
	)
	return root
}

func (c *cli) load(cfgFile string) error {
	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	loc, err := time.LoadLocation(c.v.GetString("timezone"))
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.loc = loc
	c.window = slots.Window{
		StartHour:       c.v.GetInt("start_hour"),
		EndHour:         c.v.GetInt("end_hour"),
		IntervalMinutes: c.v.GetInt("slot_interval"),
	}
	if err := c.window.Validate(); err != nil {
		return fmt.Errorf("working hours: %w", err)
	}
	c.logger = runtime.NewLoggerTo(c.errOut, "front-desk", c.v.GetString("log_level"))
	c.reg = prometheus.NewRegistry()
	c.metrics = metrics.NewSchedulingMetrics(c.reg)
	return nil
}

// open connects to clinic-service and loads the doctor roster.
func (c *cli) open(ctx context.Context) (*desk.Page, error) {
	b, err := c.backend(c.v.GetString("api_url"), c.v.GetString("token"))
	if err != nil {
		return nil, err
	}
	return desk.New(ctx, b, desk.Config{
		Window:       c.window,
		CellCap:      c.v.GetInt("cell_cap"),
		Location:     c.loc,
		Now:          c.now,
		FetchTimeout: c.v.GetDuration("fetch_timeout"),
		Logger:       c.logger,
		Metrics:      c.metrics,
	})
}

func (c *cli) dumpMetrics() error {
	families, err := c.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(c.errOut, mf); err != nil {
			return err
		}
	}
	return nil
}
