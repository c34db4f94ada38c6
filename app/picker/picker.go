// Package picker selects dump files to import when the UI doesn't pass one
package picker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/go-pkgz/lgr"
)

// DefaultPatterns match plain and gzipped csv dumps
var DefaultPatterns = []string{"*.csv", "*.csv.gz"}

// Newest picks the most recently modified dump in Dir. No matching file means cancelled selection.
type Newest struct {
	Dir      string
	Patterns []string
}

// Pick returns path of the newest matching file, ok is false if nothing matched
func (n Newest) Pick(ctx context.Context) (path string, ok bool, err error) {
	if n.Dir == "" {
		return "", false, nil
	}
	patterns := n.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var found []candidate
	seen := map[string]bool{}
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		matches, err := filepath.Glob(filepath.Join(n.Dir, p))
		if err != nil {
			return "", false, fmt.Errorf("bad dump pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			st, err := os.Stat(m)
			if err != nil || !st.Mode().IsRegular() {
				continue
			}
			found = append(found, candidate{path: m, modTime: st.ModTime().UnixNano()})
		}
	}
	if len(found) == 0 {
		log.Printf("[DEBUG] no dump files in %s", n.Dir)
		return "", false, nil
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].modTime == found[j].modTime {
			return found[i].path < found[j].path
		}
		return found[i].modTime > found[j].modTime
	})
	log.Printf("[INFO] picked dump %s", found[0].path)
	return found[0].path, true, nil
}
