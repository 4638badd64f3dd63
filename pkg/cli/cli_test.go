package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borgmon/contact-manager/pkg/models"
)

func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "contacts.xml")
	cfgPath := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("filename = %q\nlog_level = \"error\"\n%s", data, extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, data
}

func run(cfgPath string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	args = append([]string{"-config", cfgPath}, args...)
	err := Main(context.Background(), args, strings.NewReader(""), &out, &errOut)
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := run(cfgPath, args...)
	require.NoError(t, err, "contactmanager %s", strings.Join(args, " "))
	return out
}

func TestContactsAndMeetings(t *testing.T) {
	cfgPath, data := writeConfig(t, "")
	nextWeek := time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339)

	assert.Equal(t, "0\n", mustRun(t, cfgPath, "add-contact", "Alice", "likes", "tea"))
	assert.Equal(t, "1\n", mustRun(t, cfgPath, "add-contact", "Bob"))
	mustRun(t, cfgPath, "contact-notes", "1", "prefers mornings")
	assert.FileExists(t, data)

	assert.Equal(t, "0\tAlice\n\tlikes tea\n1\tBob\n\tprefers mornings\n", mustRun(t, cfgPath, "contacts"))
	assert.Equal(t, "1\tBob\n\tprefers mornings\n", mustRun(t, cfgPath, "contacts", "Bo"))

	assert.Equal(t, "0\n", mustRun(t, cfgPath, "add-meeting", nextWeek, "0", "1"))
	assert.Empty(t, mustRun(t, cfgPath, "add-past", "01/01/2020", "kickoff", "0"))

	assert.Contains(t, mustRun(t, cfgPath, "future", "1"), "Meeting with id=0")
	assert.Contains(t, mustRun(t, cfgPath, "past", "0"), "with notes: kickoff")
	assert.Empty(t, mustRun(t, cfgPath, "past", "1"))
	assert.Contains(t, mustRun(t, cfgPath, "day", "01/01/2020"), "Meeting with id=1")

	lines := strings.Split(strings.TrimSpace(mustRun(t, cfgPath, "meetings")), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "id=1")
	assert.Contains(t, lines[1], "id=0")

	mustRun(t, cfgPath, "notes", "1", "follow-up sent")
	assert.Contains(t, mustRun(t, cfgPath, "past", "0"), "kickoff\nfollow-up sent")
}

func TestMeetingErrors(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	mustRun(t, cfgPath, "add-contact", "Alice")

	_, err := run(cfgPath, "add-meeting", "01/01/2020", "0")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = run(cfgPath, "add-meeting", time.Now().Add(time.Hour).Format(time.RFC3339), "7")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = run(cfgPath, "notes", "42", "text")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = run(cfgPath, "day", "not a date")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestUsageErrors(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	for name, args := range map[string][]string{
		"no command":      nil,
		"unknown command": {"frobnicate"},
		"missing args":    {"add-meeting", "01/01/2030"},
		"bad id":          {"future", "x"},
		"bad backend":     {"-backend", "csv", "contacts"},
		"bad log level":   {"-log-level", "loud", "contacts"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := run(cfgPath, args...)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
		})
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfgPath, xmlPath := writeConfig(t, "")
	boltPath := filepath.Join(t.TempDir(), "contacts.db")

	mustRun(t, cfgPath, "-backend", "bolt", "-data", boltPath, "add-contact", "Alice")
	assert.FileExists(t, boltPath)
	assert.NoFileExists(t, xmlPath)
	assert.Equal(t, "0\tAlice\n", mustRun(t, cfgPath, "-backend", "bolt", "-data", boltPath, "contacts"))
}

func TestExportAndImport(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	icsPath := filepath.Join(t.TempDir(), "meetings.ics")

	mustRun(t, cfgPath, "add-contact", "Alice")
	mustRun(t, cfgPath, "add-meeting", time.Now().Add(48*time.Hour).Format(time.RFC3339), "0")
	assert.Contains(t, mustRun(t, cfgPath, "export-ics", "-"), "BEGIN:VCALENDAR")
	mustRun(t, cfgPath, "export-ics", icsPath)

	// the meeting already exists in the exporting store
	assert.Equal(t, "imported 0 future, 0 past, skipped 1\n", mustRun(t, cfgPath, "import-ics", icsPath))

	other, _ := writeConfig(t, "")
	mustRun(t, other, "add-contact", "Alice")
	assert.Equal(t, "imported 1 future, 0 past, skipped 0\n", mustRun(t, other, "import-ics", icsPath))
	assert.Contains(t, mustRun(t, other, "future", "0"), "Meeting with id=0")

	_, err := run(other, "import-ics", filepath.Join(t.TempDir(), "missing.ics"))
	assert.ErrorIs(t, err, models.ErrIO)
}

func TestSync(t *testing.T) {
	start := time.Now().Add(72 * time.Hour).UTC().Format("20060102T150405Z")
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:planning",
		"DTSTAMP:20261001T000000Z",
		"DTSTART:" + start,
		"SUMMARY:Planning",
		"ATTENDEE;CN=Alice:mailto:alice@example.com",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/work.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cfgPath, _ := writeConfig(t, fmt.Sprintf(`
[[calendar.sources]]
name = "work"
url = %q

[[calendar.sources]]
name = "gone"
url = %q
`, srv.URL+"/work.ics", srv.URL+"/gone.ics"))

	mustRun(t, cfgPath, "add-contact", "Alice")
	out, err := run(cfgPath, "sync")
	assert.ErrorIs(t, err, models.ErrIO)
	assert.Equal(t, "imported 1 future, 0 past, skipped 0\n", out)
	assert.Contains(t, mustRun(t, cfgPath, "future", "0"), "Meeting with id=0")
}

func TestSyncWithoutSources(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	_, err := run(cfgPath, "sync")
	assert.ErrorIs(t, err, models.ErrMissingValue)
}
