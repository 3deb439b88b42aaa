package prereq

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// techStack maps plan.md vocabulary to the ignore entries a project of that
// stack is expected to carry.
type techStack struct {
	name    string
	markers *regexp.Regexp
	entries []string
}

var techStacks = []techStack{
	{
		name:    "python",
		markers: regexp.MustCompile(`\b(python|pip|venv)\b`),
		entries: []string{"__pycache__/", "*.pyc", ".venv/", "venv/", "dist/", "*.egg-info/", ".env*", "*.log"},
	},
	{
		name:    "node",
		markers: regexp.MustCompile(`\b(node|npm|yarn|javascript|typescript)\b`),
		entries: []string{"node_modules/", "dist/", "build/", "*.log", ".env*"},
	},
	{
		name:    "java",
		markers: regexp.MustCompile(`\b(java|gradle|maven)\b`),
		entries: []string{"target/", "*.class", "*.jar", ".gradle/", "build/"},
	},
}

// DetectStacks returns the tech stacks the plan document mentions.
func DetectStacks(plan []byte) []string {
	content := strings.ToLower(string(plan))
	var stacks []string
	for _, ts := range techStacks {
		if ts.markers.MatchString(content) {
			stacks = append(stacks, ts.name)
		}
	}
	return stacks
}

// IgnorePreflight compares the repository's .gitignore against the stock
// entries for every stack the plan mentions and returns one warning per
// shortfall. It never edits anything: the document tree belongs to the
// user, the orchestrator only reports.
func IgnorePreflight(repoRoot string, plan []byte) []string {
	if repoRoot == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err != nil {
		return nil
	}

	var warnings []string
	ignored, haveFile := readIgnoreEntries(filepath.Join(repoRoot, ".gitignore"))

	content := strings.ToLower(string(plan))
	for _, ts := range techStacks {
		if !ts.markers.MatchString(content) {
			continue
		}
		var missing []string
		for _, entry := range ts.entries {
			if !ignored[entry] {
				missing = append(missing, entry)
			}
		}
		if len(missing) == 0 {
			continue
		}
		if !haveFile {
			warnings = append(warnings,
				fmt.Sprintf(".gitignore not found; recommended for %s: %s",
					ts.name, strings.Join(missing, ", ")))
			continue
		}
		warnings = append(warnings,
			fmt.Sprintf(".gitignore lacks %s entries: %s",
				ts.name, strings.Join(missing, ", ")))
	}
	return warnings
}

func readIgnoreEntries(path string) (map[string]bool, bool) {
	entries := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return entries, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries[line] = true
	}
	return entries, true
}
