// Package job defines background job kinds, the worker wire protocol and the process handle
// wrapping a spawned worker.
package job

import (
	"fmt"
	"strings"
)

// Kind is a category of background work. At most one worker of each kind runs at a time.
type Kind int

// job kinds
const (
	KindImport Kind = iota
	KindSearch
	KindScrape
	KindUpdate
)

var kindNames = map[Kind]string{
	KindImport: "import",
	KindSearch: "search",
	KindScrape: "scrape",
	KindUpdate: "update",
}

// Kinds returns all known kinds in declaration order
func Kinds() []Kind {
	return []Kind{KindImport, KindSearch, KindScrape, KindUpdate}
}

// String returns lower-case name of the kind, i.e. "scrape"
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Title returns upper-case name used in user-facing messages, i.e. "SCRAPE"
func (k Kind) Title() string {
	return strings.ToUpper(k.String())
}

// ParseKind converts name to Kind, case-insensitive
func ParseKind(name string) (Kind, error) {
	for k, v := range kindNames {
		if strings.EqualFold(v, strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown job kind %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
