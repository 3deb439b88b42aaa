package prereq

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/speckit-dev/speckit/internal/errors"
)

// checklistItemRe matches one checkbox item: a dash bullet, a checkbox
// cell, and at least some text. Indented items count; bare checkboxes with
// no text do not.
var checklistItemRe = regexp.MustCompile(`(?m)^\s*-\s*\[([ xX])\]\s*\S`)

// ChecklistStatus is one checklist file's tally.
type ChecklistStatus struct {
	Name  string
	Total int
	Done  int
}

// Passed reports whether every item is checked. A checklist with no items
// never passes; it is unknown, which blocks under the block policy and is
// noted under warn.
func (s ChecklistStatus) Passed() bool {
	return s.Total > 0 && s.Done == s.Total
}

// Unknown reports a checklist with no recognizable items.
func (s ChecklistStatus) Unknown() bool { return s.Total == 0 }

// Incomplete returns the number of unchecked items.
func (s ChecklistStatus) Incomplete() int { return s.Total - s.Done }

// EvaluateChecklists tallies every *.md file in dir, in name order. A
// missing directory is not an error: checklists are optional artifacts.
func EvaluateChecklists(dir string) ([]ChecklistStatus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading checklist directory")
	}

	var statuses []ChecklistStatus
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading checklist %s", e.Name())
		}
		statuses = append(statuses, tally(e.Name(), data))
	}
	return statuses, nil
}

func tally(name string, data []byte) ChecklistStatus {
	st := ChecklistStatus{Name: name}
	for _, m := range checklistItemRe.FindAllSubmatch(data, -1) {
		st.Total++
		if c := m[1][0]; c == 'x' || c == 'X' {
			st.Done++
		}
	}
	return st
}
