package taskdoc

import (
	"crypto/sha256"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/speckit-dev/speckit/internal/errors"
)

// Document grammar. Phase headers open a new phase and close the previous
// one. Task lines start at column zero; indented checkbox lines and
// everything else are preserved verbatim as plain text.
//
//	## Phase 3: User Story 1 - Login (Priority: P1)
//	- [ ] T010 [P] [US1] [TEST] Contract test for POST /login (depends on: T005)
var (
	phaseHeaderRe = regexp.MustCompile(`^##\s+Phase\s+(\d+)\s*:\s*(.+?)\s*$`)
	taskLineRe    = regexp.MustCompile(`^- \[([ xX])\]\s+(T\d{3,})(?:\s+(.*?))?\s*$`)
	taskLikeRe    = regexp.MustCompile(`^- {0,4}\[`)
	markerRe      = regexp.MustCompile(`^\[(P|TEST|US\d+)\]\s*`)
	storyNameRe   = regexp.MustCompile(`(?i)\buser story (\d+)\b`)
	priorityRe    = regexp.MustCompile(`\(Priority:\s*P(\d+)\)`)
	dependsRe     = regexp.MustCompile(`(?i)\(depends on:\s*([^)]*)\)`)
	depIDRe       = regexp.MustCompile(`T\d{3,}`)
)

// lineKind tags each document line for the parser state machine.
type lineKind int

const (
	lineOther lineKind = iota
	linePhaseHeader
	lineTaskLine
)

// classified is one document line reduced to its structural content.
type classified struct {
	kind lineKind

	// phase header fields
	ordinal int
	name    string

	// task line fields
	state    byte // ' ', 'x', or 'X'
	id       string
	rest     string // markers + description, raw
	stateOff int    // offset of the checkbox character within the line
}

// classifyLine tags a single line. A line that opens like a task but does
// not parse as one is an error: the document is machine-generated and a
// near-miss is almost always a corrupted task, not prose.
func classifyLine(text string) (classified, error) {
	if m := phaseHeaderRe.FindStringSubmatch(text); m != nil {
		ordinal, err := strconv.Atoi(m[1])
		if err != nil {
			return classified{}, fmt.Errorf("phase ordinal %q: %w", m[1], err)
		}
		return classified{kind: linePhaseHeader, ordinal: ordinal, name: m[2]}, nil
	}

	if m := taskLineRe.FindStringSubmatchIndex(text); m != nil {
		return classified{
			kind:     lineTaskLine,
			state:    text[m[2]],
			id:       text[m[4]:m[5]],
			rest:     submatch(text, m, 3),
			stateOff: m[2],
		}, nil
	}

	if taskLikeRe.MatchString(text) {
		return classified{}, errors.ErrMalformedTaskLine
	}

	return classified{kind: lineOther}, nil
}

// submatch returns capture group n of a FindStringSubmatchIndex result,
// or "" when the group did not participate.
func submatch(text string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

// rawLine is a document line with its byte offset in the source.
type rawLine struct {
	num   int // 1-based
	start int
	text  string // without trailing newline or carriage return
}

func splitLines(source []byte) []rawLine {
	var lines []rawLine
	start := 0
	num := 1
	for i := 0; i <= len(source); i++ {
		if i == len(source) || source[i] == '\n' {
			if i == len(source) && i == start {
				break
			}
			text := string(source[start:i])
			text = strings.TrimSuffix(text, "\r")
			lines = append(lines, rawLine{num: num, start: start, text: text})
			start = i + 1
			num++
		}
	}
	return lines
}

// Parse builds a Document from raw text. It is pure: no filesystem access,
// no mutation of the input. The first structural violation aborts the parse
// with a DocumentError carrying the offending line.
func Parse(source []byte) (*Document, error) {
	doc := &Document{
		source:      append([]byte(nil), source...),
		fingerprint: sha256.Sum256(source),
		tasks:       make(map[string]*Task),
		spans:       make(map[string]span),
	}

	var cur *Phase
	for _, ln := range splitLines(source) {
		cl, err := classifyLine(ln.text)
		if err != nil {
			return nil, errors.NewDocumentError(fmt.Sprintf("cannot parse %q", ln.text), err).
				WithLine(ln.num)
		}

		switch cl.kind {
		case linePhaseHeader:
			cur = &Phase{
				Name:    cl.name,
				Ordinal: cl.ordinal,
				Index:   len(doc.Phases),
				Line:    ln.num,
			}
			if m := storyNameRe.FindStringSubmatch(cl.name); m != nil {
				cur.Story = "US" + m[1]
				cur.Priority, _ = strconv.Atoi(m[1])
				if pm := priorityRe.FindStringSubmatch(cl.name); pm != nil {
					cur.Priority, _ = strconv.Atoi(pm[1])
				}
			}
			doc.Phases = append(doc.Phases, cur)

		case lineTaskLine:
			task, err := buildTask(doc, cur, cl, ln)
			if err != nil {
				return nil, err
			}
			cur.Tasks = append(cur.Tasks, task)
			doc.tasks[task.ID] = task
			doc.spans[task.ID] = span{offset: ln.start + cl.stateOff}
		}
	}

	return doc, nil
}

// buildTask validates one task line against everything parsed so far.
func buildTask(doc *Document, cur *Phase, cl classified, ln rawLine) (*Task, error) {
	if cur == nil {
		return nil, errors.NewDocumentError(
			fmt.Sprintf("task %s appears before any phase header", cl.id),
			errors.ErrTaskOutsidePhase).
			WithLine(ln.num).WithTaskID(cl.id)
	}
	if prev, ok := doc.tasks[cl.id]; ok {
		return nil, errors.NewDocumentError(
			fmt.Sprintf("task %s already defined at line %d", cl.id, prev.Line),
			errors.ErrDuplicateTaskID).
			WithLine(ln.num).WithTaskID(cl.id).WithSection(cur.Name)
	}

	task := &Task{
		ID:         cl.id,
		Checked:    cl.state != ' ',
		Line:       ln.num,
		PhaseIndex: cur.Index,
		Story:      cur.Story,
	}
	if task.Checked {
		task.Status = StatusDone
	}

	// Markers come in any order directly after the identifier.
	rest := cl.rest
	var tag string
	for {
		m := markerRe.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		switch {
		case m[1] == "P":
			task.Parallel = true
		case m[1] == "TEST":
			task.Test = true
		default:
			tag = m[1]
		}
		rest = rest[len(m[0]):]
	}
	task.Description = rest

	if tag != "" && tag != cur.Story {
		return nil, errors.NewDocumentError(
			fmt.Sprintf("task %s is tagged %s but phase %q belongs to %q", cl.id, tag, cur.Name, storyOrNone(cur)),
			errors.ErrStoryTagMismatch).
			WithLine(ln.num).WithTaskID(cl.id).WithSection(cur.Name)
	}

	deps, err := parseDeps(doc, cl.id, rest, ln.num)
	if err != nil {
		return nil, err
	}
	task.DependsOn = deps

	return task, nil
}

func storyOrNone(p *Phase) string {
	if p.Story == "" {
		return "no story"
	}
	return p.Story
}

// parseDeps extracts dependency references from the description. Every
// referenced identifier must already be defined: forward references,
// references into later phases, and typos all fail identically here.
func parseDeps(doc *Document, taskID, desc string, lineNum int) ([]string, error) {
	var deps []string
	seen := make(map[string]bool)
	for _, m := range dependsRe.FindAllStringSubmatch(desc, -1) {
		ids := depIDRe.FindAllString(m[1], -1)
		if len(ids) == 0 {
			return nil, errors.NewDocumentError(
				fmt.Sprintf("task %s has a dependency list with no task identifiers", taskID),
				errors.ErrMalformedTaskLine).
				WithLine(lineNum).WithTaskID(taskID)
		}
		for _, id := range ids {
			if _, ok := doc.tasks[id]; !ok {
				return nil, errors.NewDocumentError(
					fmt.Sprintf("task %s depends on %s, which is not defined earlier in the document", taskID, id),
					errors.ErrUnknownDependency).
					WithLine(lineNum).WithTaskID(taskID)
			}
			if !seen[id] {
				seen[id] = true
				deps = append(deps, id)
			}
		}
	}
	return deps, nil
}

// ParseFile reads and parses a task document from disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPrerequisiteError(
				fmt.Sprintf("task list %s does not exist", path),
				errors.ErrTasksMissing).
				WithArtifact("tasks.md").WithPath(path).
				WithHelp("run the tasks command to generate the task list")
		}
		return nil, fmt.Errorf("failed to read task list: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}
