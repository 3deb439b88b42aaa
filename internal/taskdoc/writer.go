package taskdoc

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/speckit-dev/speckit/internal/errors"
)

// Completion is written uppercase; lowercase is accepted on read.
const doneMark = 'X'

// Writer persists a task's terminal outcome. Implementations must be safe to
// call after every outcome: failures and skips leave the document untouched,
// only success changes its checkbox.
type Writer interface {
	Record(task *Task) error
}

// StatusWriter patches completion state into the task document in place.
// It rewrites exactly one byte per completed task, located via the span
// index captured at parse time, so every other byte of the document survives
// untouched. Writes are atomic (temp file + rename) and guarded by the
// parse-time content fingerprint: if anything else modified the file, the
// write fails with a ConflictError instead of clobbering the edit.
type StatusWriter struct {
	doc *Document
}

// NewStatusWriter creates a writer for a document parsed from disk.
func NewStatusWriter(doc *Document) (*StatusWriter, error) {
	if doc.Path == "" {
		return nil, fmt.Errorf("document has no backing file")
	}
	return &StatusWriter{doc: doc}, nil
}

// Record persists the task's outcome. Only StatusDone changes the document;
// failed and skipped tasks keep their pending checkbox so a fresh run can
// pick them up again. Recording an already-checked task is a no-op.
func (w *StatusWriter) Record(task *Task) error {
	if task.Status != StatusDone || task.Checked {
		return nil
	}

	sp, ok := w.doc.spans[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, errors.ErrTaskNotFound)
	}

	current, err := os.ReadFile(w.doc.Path)
	if err != nil {
		return fmt.Errorf("failed to read task list before write: %w", err)
	}
	if sha256.Sum256(current) != w.doc.fingerprint {
		return errors.NewConflictError(
			"task list changed on disk since it was parsed",
			errors.ErrDocumentModified).
			WithPath(w.doc.Path)
	}

	patched := append([]byte(nil), w.doc.source...)
	patched[sp.offset] = doneMark

	if err := atomicWrite(w.doc.Path, patched); err != nil {
		return err
	}

	w.doc.source = patched
	w.doc.fingerprint = sha256.Sum256(patched)
	task.Checked = true
	return nil
}

// atomicWrite writes data to path via a temp file and rename, so a reader
// never observes a half-written document.
func atomicWrite(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace task list: %w", err)
	}
	return nil
}

// NopWriter discards all updates. Dry runs use it so the document is never
// modified.
type NopWriter struct{}

// Record implements Writer.
func (NopWriter) Record(*Task) error { return nil }
