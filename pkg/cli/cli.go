// Package cli implements the contactmanager command line on top of the
// record store.
package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/borgmon/contact-manager/pkg/calendar"
	"github.com/borgmon/contact-manager/pkg/datastore"
	"github.com/borgmon/contact-manager/pkg/logger"
	"github.com/borgmon/contact-manager/pkg/models"
	"github.com/borgmon/contact-manager/pkg/store"
)

type command struct {
	minArgs int
	mutates bool
	run     func(a *app, args []string) error
}

var commands = map[string]command{
	"add-contact":   {minArgs: 1, mutates: true, run: (*app).addContact},
	"contact-notes": {minArgs: 2, mutates: true, run: (*app).contactNotes},
	"contacts":      {run: (*app).listContacts},
	"add-meeting":   {minArgs: 2, mutates: true, run: (*app).addMeeting},
	"add-past":      {minArgs: 3, mutates: true, run: (*app).addPast},
	"notes":         {minArgs: 2, mutates: true, run: (*app).meetingNotes},
	"future":        {minArgs: 1, run: (*app).futureMeetings},
	"past":          {minArgs: 1, run: (*app).pastMeetings},
	"day":           {minArgs: 1, run: (*app).meetingsOn},
	"meetings":      {run: (*app).allMeetings},
	"export-ics":    {minArgs: 1, run: (*app).exportICS},
	"import-ics":    {minArgs: 1, mutates: true, run: (*app).importICS},
	"sync":          {mutates: true, run: (*app).sync},
}

type app struct {
	ctx    context.Context
	cfg    models.Config
	cm     *store.ContactManager
	log    zerolog.Logger
	stdin  io.Reader
	stdout io.Writer
	now    func() time.Time
}

// Main parses args, opens the store named by the config and runs one
// command. Output goes to stdout; logs go to stderr unless the config names
// a log file.
func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, name, rest, err := Parse(args, stderr)
	if err != nil {
		return err
	}
	cmd, ok := commands[name]
	if !ok {
		return models.NewError(models.ErrInvalidArgument, "unknown command %q", name)
	}
	if len(rest) < cmd.minArgs {
		return models.NewError(models.ErrInvalidArgument, "%s needs at least %d argument(s)", name, cmd.minArgs)
	}

	cfg, err := store.NewConfigStore(opts.ConfigPath).Load()
	if err != nil {
		return err
	}
	opts.Apply(&cfg)

	build := logger.New().Level(cfg.LogLevel).FromBuffer(stderr)
	if cfg.LogFile != "" {
		build = build.FromPath(cfg.LogFile)
	}
	logData, err := build.Make()
	if err != nil {
		return err
	}
	defer logData.Close()
	log := logData.Logger.With().Str("command", name).Logger()

	cm, err := store.New(cfg, store.WithLogger(log))
	if err != nil {
		return err
	}

	a := &app{ctx: ctx, cfg: cfg, cm: cm, log: log, stdin: stdin, stdout: stdout, now: time.Now}
	if err := cmd.run(a, rest); err != nil {
		return err
	}
	if cmd.mutates {
		return cm.Flush()
	}
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, models.WrapError(models.ErrInvalidArgument, err, "bad id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, len(args))
	for i, s := range args {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// contact looks up a single stored contact by its id argument.
func (a *app) contact(arg string) (*models.Contact, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	contacts, err := a.cm.GetContacts(id)
	if err != nil {
		return nil, err
	}
	return contacts[0], nil
}

func (a *app) contacts(args []string) ([]*models.Contact, error) {
	ids, err := parseIDs(args)
	if err != nil {
		return nil, err
	}
	return a.cm.GetContacts(ids...)
}

func (a *app) addContact(args []string) error {
	id, err := a.cm.AddNewContact(args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}

func (a *app) contactNotes(args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return a.cm.AddContactNotes(id, strings.Join(args[1:], " "))
}

func (a *app) listContacts(args []string) error {
	pattern := strings.Join(args, " ")
	for _, c := range a.cm.GetContactsByName(pattern) {
		fmt.Fprintf(a.stdout, "%d\t%s\n", c.ID(), c.Name())
		for _, line := range strings.Split(c.Notes(), "\n") {
			if line != "" {
				fmt.Fprintf(a.stdout, "\t%s\n", line)
			}
		}
	}
	return nil
}

func (a *app) addMeeting(args []string) error {
	date, err := datastore.ParseDate(args[0])
	if err != nil {
		return err
	}
	contacts, err := a.contacts(args[1:])
	if err != nil {
		return err
	}
	id, err := a.cm.AddFutureMeeting(contacts, date)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, id)
	return nil
}

func (a *app) addPast(args []string) error {
	date, err := datastore.ParseDate(args[0])
	if err != nil {
		return err
	}
	contacts, err := a.contacts(args[2:])
	if err != nil {
		return err
	}
	return a.cm.AddNewPastMeeting(contacts, date, args[1])
}

func (a *app) meetingNotes(args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return a.cm.AddMeetingNotes(id, strings.Join(args[1:], " "))
}

func (a *app) futureMeetings(args []string) error {
	c, err := a.contact(args[0])
	if err != nil {
		return err
	}
	meetings, err := a.cm.GetFutureMeetingList(c)
	if err != nil {
		return err
	}
	for _, m := range meetings {
		fmt.Fprintln(a.stdout, m)
	}
	return nil
}

func (a *app) pastMeetings(args []string) error {
	c, err := a.contact(args[0])
	if err != nil {
		return err
	}
	meetings, err := a.cm.GetPastMeetingList(c)
	if err != nil {
		return err
	}
	for _, m := range meetings {
		fmt.Fprintln(a.stdout, m)
	}
	return nil
}

func (a *app) meetingsOn(args []string) error {
	date, err := datastore.ParseDate(args[0])
	if err != nil {
		return err
	}
	meetings, err := a.cm.GetMeetingsOn(date)
	if err != nil {
		return err
	}
	for _, m := range meetings {
		fmt.Fprintln(a.stdout, m)
	}
	return nil
}

func (a *app) allMeetings([]string) error {
	for _, m := range a.cm.GetAllMeetings() {
		fmt.Fprintln(a.stdout, m)
	}
	return nil
}

func (a *app) exportICS(args []string) error {
	var buf bytes.Buffer
	meetings := a.cm.GetAllMeetings()
	if err := calendar.Export(&buf, a.cfg.Calendar.ProductID, meetings, a.now()); err != nil {
		return err
	}
	if args[0] == "-" {
		_, err := a.stdout.Write(buf.Bytes())
		return err
	}
	if err := datastore.WriteFileAtomic(args[0], buf.Bytes(), 0o644); err != nil {
		return err
	}
	a.log.Info().Str("file", args[0]).Int("meetings", len(meetings)).Msg("Exported calendar")
	return nil
}

func (a *app) window() calendar.Window {
	return calendar.WindowAround(a.now(), a.cfg.Calendar.ImportWindowDays)
}

func (a *app) importICS(args []string) error {
	src := args[0]
	importer := calendar.NewImporter(a.log)

	var events []models.CalendarEvent
	var err error
	switch {
	case src == "-":
		events, err = importer.Read(a.stdin, a.window())
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		events, err = importer.Fetch(a.ctx, models.CalendarSource{Name: src, URL: src}, a.window())
	default:
		f, openErr := os.Open(src)
		if openErr != nil {
			return models.WrapError(models.ErrIO, openErr, "open calendar")
		}
		defer f.Close()
		events, err = importer.Read(f, a.window())
	}
	if err != nil {
		return err
	}
	return a.importEvents(events)
}

func (a *app) importEvents(events []models.CalendarEvent) error {
	report, err := a.cm.ImportEvents(events)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "imported %d future, %d past, skipped %d\n",
		len(report.Future), len(report.Past), report.Skipped)
	return nil
}

// sync imports every configured source. A source that cannot be fetched is
// logged, the rest are still imported and saved, and the command fails.
func (a *app) sync([]string) error {
	sources := a.cfg.Calendar.Sources
	if len(sources) == 0 {
		return models.NewError(models.ErrMissingValue, "no calendar sources configured")
	}

	importer := calendar.NewImporter(a.log)
	window := a.window()
	var events []models.CalendarEvent
	failed := 0
	for _, source := range sources {
		fetched, err := importer.Fetch(a.ctx, source, window)
		if err != nil {
			failed++
			a.log.Error().Err(err).Str("source", source.Name).Msg("Failed to fetch calendar")
			continue
		}
		events = append(events, fetched...)
	}

	if err := a.importEvents(events); err != nil {
		return err
	}
	if failed > 0 {
		if err := a.cm.Flush(); err != nil {
			return err
		}
		return models.NewError(models.ErrIO, "%d of %d calendar sources failed", failed, len(sources))
	}
	return nil
}
