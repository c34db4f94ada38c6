package supervisor

import (
	"fmt"
	"strconv"
)

// UI to supervisor commands
const (
	CmdWindowClose      = "window-close"
	CmdWindowMinimize   = "window-minimize"
	CmdWindowMaximize   = "window-maximize-toggle"
	CmdWindowShow       = "window-show"
	CmdImport           = "import-request"
	CmdSearch           = "search-request"
	CmdScrape           = "scrape-request"
	CmdPreferenceChange = "preference-change"
	CmdSaveSettings     = "save-settings"
	CmdTrackersUpdate   = "trackers-update-request"
	CmdDumpUpdate       = "dump-update-request"
	CmdUpdateTick       = "update-tick" // posted by the update scheduler
)

// supervisor to UI events
const (
	EvtNotify              = "notify"
	EvtAppQuit             = "app-quit"
	EvtWindowHide          = "window-hide"
	EvtHideOverlay         = "hide-ol"
	EvtImportStart         = "import-start"
	EvtImportEnd           = "import-end"
	EvtSearchInit          = "search-init"
	EvtSearchEnd           = "search-end"
	EvtScrapeInit          = "scrape-init"
	EvtScrapeEnd           = "scrape-end"
	EvtUpdateStart         = "update-start"
	EvtUpdateEnd           = "update-end"
	EvtTrackersUpdated     = "trackers-updated"
	EvtTrackersFailed      = "trackers-update-failed"
	EvtDumpUpdateAvailable = "dump-update-available"
	EvtDumpUpdateFailed    = "dump-update-failed"
)

// Command is a named UI command with positional args as decoded from json
type Command struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// Arg returns positional arg or nil if missing
func (c Command) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// String returns positional arg formatted as string, empty for missing or null
func (c Command) String(i int) string {
	switch v := c.Arg(i).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Bool returns positional arg as bool, accepting "true"/"1" strings
func (c Command) Bool(i int) bool {
	switch v := c.Arg(i).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	case float64:
		return v != 0
	default:
		return false
	}
}

// Map returns positional arg as object, nil if not an object
func (c Command) Map(i int) map[string]any {
	if m, ok := c.Arg(i).(map[string]any); ok {
		return m
	}
	return nil
}

// Strings returns all args formatted as strings, the form workers get them in
func (c Command) Strings() []string {
	res := make([]string, len(c.Args))
	for i := range c.Args {
		res[i] = c.String(i)
	}
	return res
}
