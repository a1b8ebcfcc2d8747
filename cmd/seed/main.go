// Package main loads a YAML fixture of people and events into the configured store.
//
// Usage:
//
//	go run ./cmd/seed -file cmd/seed/fixture.yaml
//
// People are matched by email and events by name and manager, so running the same
// fixture twice is harmless.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/musudik/dropmybeat-api/internal/store"
	"github.com/musudik/dropmybeat-api/internal/store/postgres"
	"github.com/musudik/dropmybeat-api/pkg/config"
	"github.com/musudik/dropmybeat-api/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Fixture is the seed file layout.
type Fixture struct {
	People []PersonFixture `yaml:"people"`
	Events []EventFixture  `yaml:"events"`
}

type PersonFixture struct {
	Email     string      `yaml:"email"`
	Password  string      `yaml:"password"`
	FirstName string      `yaml:"first_name"`
	LastName  string      `yaml:"last_name"`
	Role      models.Role `yaml:"role"`
}

type EventFixture struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Venue       string             `yaml:"venue"`
	Manager     string             `yaml:"manager"`
	Status      models.EventStatus `yaml:"status"`
	Public      bool               `yaml:"public"`
	// StartsIn and Duration place the event relative to the time of seeding.
	StartsIn         time.Duration `yaml:"starts_in"`
	Duration         time.Duration `yaml:"duration"`
	MaxMembers       int           `yaml:"max_members"`
	MaxSongsPerUser  int           `yaml:"max_songs_per_user"`
	RequiresApproval bool          `yaml:"requires_approval"`
	AllowDuplicates  bool          `yaml:"allow_duplicates"`
	TimeBombMinutes  int           `yaml:"time_bomb_minutes"`
	Members          []string      `yaml:"members"`
}

// Result counts what a seed run created.
type Result struct {
	People  int
	Events  int
	Members int
}

func main() {
	file := flag.String("file", "cmd/seed/fixture.yaml", "YAML fixture to load")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.JSONLogs()).WithComponent("seed")

	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Error("seeding an in-memory store has no effect", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	fixture, err := loadFixture(*file)
	if err != nil {
		log.Error("failed to read fixture", "error", err, "file", *file)
		os.Exit(1)
	}

	st, err := postgres.NewPostgresStore(postgres.DefaultConfig(cfg.DatabaseURL), log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := st.Migrate(ctx); err != nil {
		log.Error("failed to migrate", "error", err)
		os.Exit(1)
	}

	res, err := Seed(ctx, st, fixture, time.Now().UTC())
	if err != nil {
		log.Error("seed failed", "error", err)
		os.Exit(1)
	}
	log.Info("seed complete", "people", res.People, "events", res.Events, "members", res.Members)
}

func loadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseFixture(data)
}

func parseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	return &f, nil
}

// Seed writes the fixture's people, then its events and their rosters.
func Seed(ctx context.Context, st store.Store, f *Fixture, now time.Time) (Result, error) {
	var res Result
	ids := make(map[string]string, len(f.People))

	for _, pf := range f.People {
		id, created, err := seedPerson(ctx, st, pf)
		if err != nil {
			return res, fmt.Errorf("person %s: %w", pf.Email, err)
		}
		ids[models.NormalizeEmail(pf.Email)] = id
		if created {
			res.People++
		}
	}

	for _, ef := range f.Events {
		managerID, ok := ids[models.NormalizeEmail(ef.Manager)]
		if !ok {
			return res, fmt.Errorf("event %q: manager %s is not in the fixture", ef.Name, ef.Manager)
		}
		event, created, err := seedEvent(ctx, st, ef, managerID, now)
		if err != nil {
			return res, fmt.Errorf("event %q: %w", ef.Name, err)
		}
		if created {
			res.Events++
		}

		for _, email := range ef.Members {
			userID, ok := ids[models.NormalizeEmail(email)]
			if !ok {
				return res, fmt.Errorf("event %q: member %s is not in the fixture", ef.Name, email)
			}
			err := st.Events().AddMember(ctx, event.ID, models.Member{
				UserID:     userID,
				JoinedAt:   now,
				IsApproved: true,
			})
			switch {
			case errors.Is(err, store.ErrDuplicateKey):
			case err != nil:
				return res, fmt.Errorf("event %q: adding %s: %w", ef.Name, email, err)
			default:
				res.Members++
			}
		}
	}
	return res, nil
}

func seedPerson(ctx context.Context, st store.Store, pf PersonFixture) (string, bool, error) {
	existing, err := st.People().GetByEmail(ctx, pf.Email)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}

	role := pf.Role
	if role == "" {
		role = models.RoleMember
	}
	person := &models.Person{
		Email:     pf.Email,
		FirstName: pf.FirstName,
		LastName:  pf.LastName,
		Role:      role,
		IsActive:  true,
	}
	if err := person.Validate(); err != nil {
		return "", false, err
	}
	if len(pf.Password) < requests.MinPasswordLength {
		return "", false, fmt.Errorf("password must be at least %d characters", requests.MinPasswordLength)
	}
	if err := st.People().Create(ctx, person, pf.Password); err != nil {
		return "", false, err
	}
	return person.ID, true, nil
}

func seedEvent(ctx context.Context, st store.Store, ef EventFixture, managerID string, now time.Time) (*models.Event, bool, error) {
	existing, err := st.Events().List(ctx, store.EventFilter{ManagerID: managerID})
	if err != nil {
		return nil, false, err
	}
	for _, e := range existing {
		if e.Name == ef.Name {
			return e, false, nil
		}
	}

	status := ef.Status
	if status == "" {
		status = models.EventStatusPublished
	}
	duration := ef.Duration
	if duration <= 0 {
		duration = 4 * time.Hour
	}
	start := now.Add(ef.StartsIn)

	event := &models.Event{
		Name:             ef.Name,
		Description:      ef.Description,
		Venue:            ef.Venue,
		ManagerID:        managerID,
		Status:           status,
		IsPublic:         ef.Public,
		MaxMembers:       ef.MaxMembers,
		RequiresApproval: ef.RequiresApproval,
		MaxSongsPerUser:  ef.MaxSongsPerUser,
		AllowDuplicates:  ef.AllowDuplicates,
		TimeBombEnabled:  ef.TimeBombMinutes > 0,
		TimeBombDuration: ef.TimeBombMinutes,
		StartDate:        start,
		EndDate:          start.Add(duration),
	}
	if err := st.Events().Create(ctx, event); err != nil {
		return nil, false, err
	}
	return event, true, nil
}
