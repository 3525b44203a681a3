package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/example/conference-repeater/internal/application"
	"github.com/example/conference-repeater/internal/autoextend"
	"github.com/example/conference-repeater/internal/config"
	"github.com/example/conference-repeater/internal/ical"
	"github.com/example/conference-repeater/internal/logging"
	"github.com/example/conference-repeater/internal/notification"
	"github.com/example/conference-repeater/internal/persistence"
	"github.com/example/conference-repeater/internal/persistence/sqlite"
	"github.com/example/conference-repeater/internal/recurrence"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "repeater",
		Usage: "manage recurring video conference rooms",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"REPEATER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before configuration",
			},
		},
		Commands: []*cli.Command{
			userCommand(),
			roomCommand(),
			previewCommand(),
			createCommand(),
			replaceCommand(),
			resyncCommand(),
			extendCommand(),
			notifyCommand(),
			exportCommand(),
			serveCommand(),
		},
	}
}

// env bundles everything a command needs after configuration and storage are
// set up.
type env struct {
	cfg     config.Config
	store   *sqlite.Store
	service *application.SeriesService
	logger  *slog.Logger

	closers []io.Closer
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func openEnv(c *cli.Context) (*env, error) {
	if envFile := c.String("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else {
		// A local .env is optional.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	e := &env{cfg: cfg, store: store, logger: logger}
	e.closers = append(e.closers, store)

	if err := store.Migrate(c.Context); err != nil {
		e.close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	var dispatcher application.NotificationDispatch
	if cfg.NotificationOutbox != "" {
		outbox, err := os.OpenFile(cfg.NotificationOutbox, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("opening notification outbox: %w", err)
		}
		e.closers = append(e.closers, outbox)
		dispatcher = notification.NewDispatcherWithSink(logger, cfg.NotificationSender, outbox)
	} else {
		dispatcher = notification.NewDispatcher(logger, cfg.NotificationSender)
	}

	e.service = application.NewSeriesServiceWithLogger(
		newSeriesStoreAdapter(store.Series),
		newRoomStoreAdapter(store.Rooms),
		dispatcher,
		uuid.NewString,
		time.Now,
		logger,
	)
	return e, nil
}

func ruleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "family", Usage: "daily, weekly, monthly_fixed, monthly_relative, yearly_fixed or yearly_relative", Required: true},
		&cli.IntFlag{Name: "interval", Usage: "periods between occurrences", Value: 1},
		&cli.StringFlag{Name: "weekday", Usage: "weekday for relative families (monday..sunday)"},
		&cli.StringFlag{Name: "ordinal", Usage: "ordinal for relative families (first, second, third, fourth, last)"},
		&cli.IntFlag{Name: "month", Usage: "month 1-12 for yearly_relative"},
	}
}

func buildRule(c *cli.Context) (recurrence.Rule, error) {
	family, err := recurrence.ParseFamily(c.String("family"))
	if err != nil {
		return recurrence.Rule{}, err
	}
	rule := recurrence.Rule{Family: family, Interval: c.Int("interval")}

	if value := c.String("weekday"); value != "" {
		weekday, err := parseWeekday(value)
		if err != nil {
			return recurrence.Rule{}, err
		}
		rule.Weekday = &weekday
	}
	if value := c.String("ordinal"); value != "" {
		ordinal, err := parseOrdinal(value)
		if err != nil {
			return recurrence.Rule{}, err
		}
		rule.Ordinal = &ordinal
	}
	if value := c.Int("month"); value != 0 {
		if value < 1 || value > 12 {
			return recurrence.Rule{}, fmt.Errorf("month must be between 1 and 12, got %d", value)
		}
		month := time.Month(value)
		rule.Month = &month
	}
	return rule, nil
}

func parseWeekday(value string) (time.Weekday, error) {
	weekdays := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	weekday, ok := weekdays[strings.ToLower(value)]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", value)
	}
	return weekday, nil
}

func parseOrdinal(value string) (recurrence.OrdinalWeek, error) {
	ordinals := map[string]recurrence.OrdinalWeek{
		"first":  recurrence.OrdinalFirst,
		"second": recurrence.OrdinalSecond,
		"third":  recurrence.OrdinalThird,
		"fourth": recurrence.OrdinalFourth,
		"last":   recurrence.OrdinalLast,
	}
	ordinal, ok := ordinals[strings.ToLower(value)]
	if !ok {
		return 0, fmt.Errorf("unknown ordinal %q", value)
	}
	return ordinal, nil
}

func parseTimeFlag(c *cli.Context, name string) (time.Time, error) {
	value := c.String(name)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("flag --%s: expected RFC3339 timestamp: %w", name, err)
	}
	return parsed, nil
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "manage the participant directory",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "add a directory entry",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "identifier (generated when omitted)"},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Usage: "display name"},
				},
				Action: func(c *cli.Context) error {
					e, err := openEnv(c)
					if err != nil {
						return err
					}
					defer e.close()

					id := c.String("id")
					if id == "" {
						id = uuid.NewString()
					}
					now := time.Now().UTC()
					user := persistence.User{
						ID:          id,
						Email:       c.String("email"),
						DisplayName: c.String("name"),
						CreatedAt:   now,
						UpdatedAt:   now,
					}
					if err := e.store.Users.CreateUser(c.Context, user); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, id)
					return nil
				},
			},
		},
	}
}

func roomCommand() *cli.Command {
	return &cli.Command{
		Name:  "room",
		Usage: "manage rooms",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a room that can serve as a series prototype",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "start", Usage: "RFC3339 start time", Required: true},
					&cli.IntFlag{Name: "duration", Usage: "duration in minutes (defaults to configuration)"},
					&cli.StringFlag{Name: "moderator", Required: true},
					&cli.StringSliceFlag{Name: "participant", Usage: "participant user ID (repeatable)"},
					&cli.StringFlag{Name: "pin", Usage: "access PIN (stored hashed)"},
				},
				Action: func(c *cli.Context) error {
					e, err := openEnv(c)
					if err != nil {
						return err
					}
					defer e.close()

					start, err := parseTimeFlag(c, "start")
					if err != nil {
						return err
					}
					if start.IsZero() {
						return fmt.Errorf("flag --start: a start time is required")
					}

					var pinHash *string
					if pin := c.String("pin"); pin != "" {
						hash, err := application.HashAccessPin(pin, application.DefaultArgon2idParams)
						if err != nil {
							return fmt.Errorf("hashing access pin: %w", err)
						}
						pinHash = &hash
					}

					participants := c.StringSlice("participant")
					now := time.Now().UTC()
					duration := c.Int("duration")
					if duration == 0 {
						duration = e.cfg.DefaultDurationMinutes
					}
					room := persistence.Room{
						ID:                      uuid.NewString(),
						Name:                    c.String("name"),
						Start:                   start,
						DurationMinutes:         duration,
						End:                     start.Add(time.Duration(duration) * time.Minute),
						ModeratorID:             c.String("moderator"),
						AccessPinHash:           pinHash,
						ParticipantIDs:          participants,
						PrototypeParticipantIDs: participants,
						CreatedAt:               now,
						UpdatedAt:               now,
					}
					if err := e.store.Rooms.SaveRoom(c.Context, room); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, room.ID)
					return nil
				},
			},
			{
				Name:  "verify-pin",
				Usage: "check an access PIN against a room's stored hash",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "room", Required: true},
					&cli.StringFlag{Name: "pin", Required: true},
				},
				Action: func(c *cli.Context) error {
					e, err := openEnv(c)
					if err != nil {
						return err
					}
					defer e.close()

					room, err := e.store.Rooms.GetRoom(c.Context, c.String("room"))
					if err != nil {
						return err
					}
					if room.AccessPinHash == nil {
						return fmt.Errorf("room %s has no access pin", room.ID)
					}
					if err := application.VerifyAccessPin(*room.AccessPinHash, c.String("pin")); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "ok")
					return nil
				},
			},
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "print the dates a rule would generate, without touching storage",
		Flags: append(ruleFlags(),
			&cli.StringFlag{Name: "anchor", Usage: "RFC3339 anchor time", Required: true},
			&cli.IntFlag{Name: "count", Value: 10},
		),
		Action: func(c *cli.Context) error {
			rule, err := buildRule(c)
			if err != nil {
				return err
			}
			if err := recurrence.Validate(rule); err != nil {
				return err
			}
			anchor, err := parseTimeFlag(c, "anchor")
			if err != nil {
				return err
			}
			for _, date := range recurrence.Generate(rule, anchor, c.Int("count")) {
				fmt.Fprintln(c.App.Writer, date.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "create a series from a prototype room",
		Flags: append(ruleFlags(),
			&cli.StringFlag{Name: "prototype", Usage: "prototype room ID", Required: true},
			&cli.StringFlag{Name: "anchor", Usage: "RFC3339 anchor time (defaults to the prototype start)"},
			&cli.IntFlag{Name: "count", Usage: "occurrences to generate (defaults to configuration)"},
		),
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			rule, err := buildRule(c)
			if err != nil {
				return err
			}
			anchor, err := parseTimeFlag(c, "anchor")
			if err != nil {
				return err
			}
			count := c.Int("count")
			if count == 0 {
				count = e.cfg.DefaultRepetitionCount
			}

			series, err := e.service.CreateSeries(c.Context, application.CreateSeriesParams{
				Rule:            rule,
				PrototypeRoomID: c.String("prototype"),
				Anchor:          anchor,
				Count:           count,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer, series.ID)
			printGeneration(c.App.Writer, series.LatestGeneration())
			return nil
		},
	}
}

func replaceCommand() *cli.Command {
	return &cli.Command{
		Name:  "replace",
		Usage: "reschedule a series from one of its rooms",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "room", Usage: "room ID inside the series", Required: true},
			&cli.StringFlag{Name: "start", Usage: "RFC3339 new start time", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			start, err := parseTimeFlag(c, "start")
			if err != nil {
				return err
			}
			series, err := e.service.ReplaceRooms(c.Context, application.ReplaceRoomsParams{
				RoomID:   c.String("room"),
				NewStart: start,
			})
			if err != nil {
				return err
			}
			printGeneration(c.App.Writer, series.LatestGeneration())
			return nil
		},
	}
}

func resyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "resync",
		Usage: "push the prototype participant set onto every room of a series",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "series", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			return e.service.ResyncParticipants(c.Context, c.String("series"))
		},
	}
}

func extendCommand() *cli.Command {
	return &cli.Command{
		Name:  "extend",
		Usage: "append occurrences that continue a series",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "series", Required: true},
			&cli.IntFlag{Name: "count", Usage: "occurrences to append (defaults to configuration)"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			count := c.Int("count")
			if count == 0 {
				count = e.cfg.DefaultRepetitionCount
			}
			generation, err := e.service.ExtendSeries(c.Context, c.String("series"), count)
			if err != nil {
				return err
			}
			printGeneration(c.App.Writer, &generation)
			return nil
		},
	}
}

func notifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "dispatch a notification for a series",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "series", Required: true},
			&cli.StringFlag{Name: "mode", Usage: "NEW or REQUEST", Value: string(application.ModeNewSeries)},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			mode := application.Mode(strings.ToUpper(c.String("mode")))
			switch mode {
			case application.ModeNewSeries, application.ModeParticipantRequest:
			default:
				return fmt.Errorf("unknown mode %q", c.String("mode"))
			}
			return e.service.SendNotification(c.Context, c.String("series"), mode)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "export a series as iCalendar data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "series", Required: true},
			&cli.StringFlag{Name: "format", Usage: "ics or rrule", Value: "ics"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			series, err := e.service.GetSeries(c.Context, c.String("series"))
			if err != nil {
				return err
			}

			switch c.String("format") {
			case "rrule":
				value, err := ical.RRuleString(series.Rule, series.AnchorStart, series.RepetitionCount)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, value)
			case "ics":
				latest := series.LatestGeneration()
				if latest == nil {
					return fmt.Errorf("series %s has no generated rooms", series.ID)
				}
				fmt.Fprint(c.App.Writer, ical.GenerationCalendar(series.ID, *latest))
			default:
				return fmt.Errorf("unknown format %q", c.String("format"))
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the automatic extension job until interrupted",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			if !e.cfg.AutoExtend.Enabled {
				return fmt.Errorf("auto extension is disabled; enable it in configuration")
			}

			job := autoextend.NewJob(e.service, e.cfg.AutoExtend.Cron, e.cfg.AutoExtend.Count, e.logger)
			if err := job.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			e.logger.Info("shutting down")
			job.Stop()
			return nil
		},
	}
}

func printGeneration(w io.Writer, generation *application.Generation) {
	if generation == nil {
		return
	}
	for _, room := range generation.Rooms {
		fmt.Fprintf(w, "%s\t%s\n", room.ID, room.Start.Format(time.RFC3339))
	}
}
