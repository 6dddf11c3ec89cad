package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/md-rashed-zaman/clinicdesk/libs/slots"
)

type serviceConfig struct {
	DatabaseURL        string
	DBMaxConns         int32
	KafkaBrokers       []string
	OutboxPollEvery    time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int
	CORSOrigins        []string
	StaffSecret        string
	Window             slots.Window
	Location           *time.Location
	AllowOverbooking   bool
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		DatabaseURL:        config.String("DATABASE_URL", ""),
		DBMaxConns:         int32(config.Int("DB_MAX_CONNS", 10)),
		KafkaBrokers:       kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		OutboxPollEvery:    config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		RedisAddr:          config.String("REDIS_ADDR", ""),
		RedisPassword:      config.String("REDIS_PASSWORD", ""),
		RedisDB:            config.Int("REDIS_DB", 0),
		RateLimitPerMinute: config.Int("RATE_LIMIT_PER_MINUTE", 120),
		CORSOrigins:        config.List("CORS_ALLOWED_ORIGINS", ""),
		StaffSecret:        config.String("STAFF_JWT_SECRET", ""),
		Window: slots.Window{
			StartHour:       config.Int("WORKING_HOURS_START", 9),
			EndHour:         config.Int("WORKING_HOURS_END", 17),
			IntervalMinutes: config.Int("SLOT_INTERVAL_MINUTES", 30),
		},
		AllowOverbooking: config.Bool("ALLOW_OVERBOOKING", false),
	}
	if err := cfg.Window.Validate(); err != nil {
		return serviceConfig{}, fmt.Errorf("working hours: %w", err)
	}
	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "UTC"))
	if err != nil {
		return serviceConfig{}, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	cfg.Location = loc
	return cfg, nil
}

// demoDoctors seeds the in-memory store so the front desk has a roster to book against.
func demoDoctors() []clinic.Doctor {
	return []clinic.Doctor{
		{ID: "d1", Name: "Dr. Meera Iyer", Speciality: "General Practice", Fee: 50000},
		{ID: "d2", Name: "Dr. Omar Haddad", Speciality: "Dermatology", Fee: 80000, WorkStartHour: 10, WorkEndHour: 16},
		{ID: "d3", Name: "Dr. Lena Park", Speciality: "Paediatrics", Fee: 60000, SlotMinutes: 20},
	}
}
