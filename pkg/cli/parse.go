package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/borgmon/contact-manager/pkg/models"
	"github.com/borgmon/contact-manager/pkg/store"
)

const usageText = `usage: contactmanager [flags] <command> [args]

Commands:
  add-contact NAME [NOTES]         add a contact and print its id
  contact-notes CONTACT_ID TEXT    append notes to a contact
  contacts [PATTERN]               list contacts whose name contains PATTERN
  add-meeting DATE CONTACT_ID...   schedule a future meeting and print its id
  add-past DATE NOTES CONTACT_ID...
                                   record a meeting that took place
  notes MEETING_ID TEXT            add notes to a meeting, converting it to a past meeting
  future CONTACT_ID                list future meetings with a contact
  past CONTACT_ID                  list past meetings with a contact
  day DATE                         list meetings on a calendar day
  meetings                         list every meeting
  export-ics FILE|-                write meetings as an iCalendar file
  import-ics FILE|URL|-            import meetings from an iCalendar file or feed
  sync                             import every calendar source in the config

Dates are RFC 3339 (2026-10-19T15:04:05+02:00) or dd/mm/yyyy.

Flags:
`

// Options are the global flags. Empty values leave the config file setting
// alone.
type Options struct {
	ConfigPath string
	DataFile   string
	Backend    string
	LogLevel   string
}

// Apply overrides cfg with the flags that were set.
func (o *Options) Apply(cfg *models.Config) {
	if o.DataFile != "" {
		cfg.Filename = o.DataFile
	}
	if o.Backend != "" {
		cfg.Backend = models.Backend(o.Backend)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}

// Parse reads the global flags and returns them with the command name and
// its arguments.
func Parse(args []string, output io.Writer) (*Options, string, []string, error) {
	flagSet := flag.NewFlagSet("contactmanager", flag.ContinueOnError)
	flagSet.SetOutput(output)

	opts := &Options{}
	flagSet.StringVar(&opts.ConfigPath, "config", store.DefaultConfigPath(), "Path of the TOML config file")
	flagSet.StringVar(&opts.DataFile, "data", "", "Data file, overrides the config")
	flagSet.StringVar(&opts.Backend, "backend", "", "Storage backend: xml or bolt, overrides the config")
	flagSet.StringVar(&opts.LogLevel, "log-level", "", "Log level, overrides the config")
	flagSet.Usage = func() {
		fmt.Fprint(flagSet.Output(), usageText)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, "", nil, err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return nil, "", nil, models.NewError(models.ErrInvalidArgument, "command required")
	}
	return opts, strings.ToLower(rest[0]), rest[1:], nil
}
