package workspace

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/speckit-dev/speckit/internal/errors"
)

func mkFeature(t *testing.T, root, name string, files ...string) string {
	t.Helper()
	dir := filepath.Join(root, "specs", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		if strings.HasSuffix(f, "/") {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.WriteFile(path, []byte("# "+f+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestResolveExplicitFeatureDir(t *testing.T) {
	root := t.TempDir()
	feature := mkFeature(t, root, "001-login", "spec.md", "plan.md", "tasks.md")

	rc, err := Resolve(Options{WorkDir: root, FeatureDir: feature})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if rc.FeatureDir != feature {
		t.Errorf("FeatureDir = %q, want %q", rc.FeatureDir, feature)
	}
	if rc.TasksPath != filepath.Join(feature, "tasks.md") {
		t.Errorf("TasksPath = %q", rc.TasksPath)
	}
	if rc.SpecPath != filepath.Join(feature, "spec.md") {
		t.Errorf("SpecPath = %q", rc.SpecPath)
	}
	if rc.ChecklistDir != filepath.Join(feature, "checklists") {
		t.Errorf("ChecklistDir = %q", rc.ChecklistDir)
	}
}

func TestResolveTasksFileOverride(t *testing.T) {
	root := t.TempDir()
	feature := mkFeature(t, root, "001-login", "plan.md")
	override := filepath.Join(root, "alt-tasks.md")

	rc, err := Resolve(Options{WorkDir: root, FeatureDir: feature, TasksFile: override})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rc.TasksPath != override {
		t.Errorf("TasksPath = %q, want %q", rc.TasksPath, override)
	}

	// Relative overrides resolve against the working directory.
	rc, err = Resolve(Options{WorkDir: root, FeatureDir: feature, TasksFile: "alt-tasks.md"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rc.TasksPath != override {
		t.Errorf("relative TasksPath = %q, want %q", rc.TasksPath, override)
	}
}

func TestResolveDetectsSingleCandidate(t *testing.T) {
	root := t.TempDir()
	feature := mkFeature(t, root, "002-search", "plan.md", "tasks.md")
	mkFeature(t, root, "003-drafts") // no plan.md, not a candidate

	// Detection walks up from a nested working directory.
	nested := filepath.Join(root, "src", "api")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	rc, err := Resolve(Options{WorkDir: nested})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rc.FeatureDir != feature {
		t.Errorf("FeatureDir = %q, want %q", rc.FeatureDir, feature)
	}
}

func TestResolveAmbiguousCandidates(t *testing.T) {
	root := t.TempDir()
	mkFeature(t, root, "001-login", "plan.md")
	mkFeature(t, root, "002-search", "plan.md")

	_, err := Resolve(Options{WorkDir: root})
	if err == nil {
		t.Fatal("Resolve() succeeded, want ambiguity error")
	}
	if !errors.Is(err, errors.ErrFeatureDirNotFound) {
		t.Errorf("error = %v, want ErrFeatureDirNotFound", err)
	}
	var pre *errors.PrerequisiteError
	if !errors.As(err, &pre) {
		t.Fatalf("error type = %T, want *errors.PrerequisiteError", err)
	}
	if !strings.Contains(pre.Help, "--feature-dir") {
		t.Errorf("Help = %q, want a --feature-dir hint", pre.Help)
	}
}

func TestResolveNoSpecsDir(t *testing.T) {
	_, err := Resolve(Options{WorkDir: t.TempDir()})
	if !errors.Is(err, errors.ErrFeatureDirNotFound) {
		t.Errorf("error = %v, want ErrFeatureDirNotFound", err)
	}
}

func TestResolveMissingExplicitDir(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(Options{WorkDir: root, FeatureDir: filepath.Join(root, "nope")})
	if !errors.Is(err, errors.ErrFeatureDirNotFound) {
		t.Errorf("error = %v, want ErrFeatureDirNotFound", err)
	}
}

func TestResolveOptionalDocs(t *testing.T) {
	root := t.TempDir()
	feature := mkFeature(t, root, "001-login",
		"spec.md", "plan.md", "tasks.md", "data-model.md", "quickstart.md", "contracts/")

	rc, err := Resolve(Options{WorkDir: root, FeatureDir: feature})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"data-model.md", "quickstart.md", "contracts/"}
	if !reflect.DeepEqual(rc.OptionalDocs, want) {
		t.Errorf("OptionalDocs = %v, want %v", rc.OptionalDocs, want)
	}
}
