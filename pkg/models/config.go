package models

import "strings"

// Backend selects the persistence format of the store.
type Backend string

const (
	BackendXML  Backend = "xml"  // single XML document, written atomically
	BackendBolt Backend = "bolt" // BoltDB file, one transaction per flush
)

const (
	DefaultFilename         = "contacts.xml"
	DefaultLogLevel         = "info"
	DefaultProductID        = "-//borgmon//contact-manager//EN"
	DefaultImportWindowDays = 30
)

// Config holds application configuration
type Config struct {
	Filename                 string         `toml:"filename"`                    // backing file of the store
	Backend                  Backend        `toml:"backend"`                     // xml or bolt
	RejectFuturePastMeetings bool           `toml:"reject_future_past_meetings"` // refuse dates after today in AddNewPastMeeting
	LogLevel                 string         `toml:"log_level"`                   // zerolog level name
	LogFile                  string         `toml:"log_file"`                    // empty means stderr
	Calendar                 CalendarConfig `toml:"calendar"`
}

// CalendarConfig controls iCalendar export and import
type CalendarConfig struct {
	ProductID        string           `toml:"product_id"`         // PRODID of exported calendars
	ImportWindowDays int              `toml:"import_window_days"` // days either side of now that imports cover
	Sources          []CalendarSource `toml:"sources"`
}

// CalendarSource represents a named iCal calendar source
type CalendarSource struct {
	Name string `toml:"name"` // Display name
	URL  string `toml:"url"`  // iCal URL
}

// DefaultConfig returns the configuration used when no config file exists
func DefaultConfig() Config {
	return Config{
		Filename:                DefaultFilename,
		Backend:                 BackendXML,
		LogLevel:                DefaultLogLevel,
		Calendar: CalendarConfig{
			ProductID:        DefaultProductID,
			ImportWindowDays: DefaultImportWindowDays,
		},
	}
}

// Validate fills empty fields with defaults and rejects unknown values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Filename) == "" {
		c.Filename = DefaultFilename
	}
	if c.Backend == "" {
		c.Backend = BackendXML
	}
	switch c.Backend {
	case BackendXML, BackendBolt:
	default:
		return invalidf("unknown backend %q", c.Backend)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = DefaultProductID
	}
	if c.Calendar.ImportWindowDays < 0 {
		return invalidf("import_window_days must be >= 0 (got %d)", c.Calendar.ImportWindowDays)
	}
	if c.Calendar.ImportWindowDays == 0 {
		c.Calendar.ImportWindowDays = DefaultImportWindowDays
	}
	for i, s := range c.Calendar.Sources {
		if !s.Validate() {
			return invalidf("calendar source %d needs a name and a url", i)
		}
	}
	return nil
}

// Validate checks if the iCal source has required fields
func (s *CalendarSource) Validate() bool {
	return s.Name != "" && s.URL != ""
}
