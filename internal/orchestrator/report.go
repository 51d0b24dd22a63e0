package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/specimport/internal/remote"
)

// ErrRemoteCreationFailed matches every *ImportError.
var ErrRemoteCreationFailed = errors.New("remote creation failed")

// Entity is one object created on the remote side.
type Entity struct {
	Kind     remote.Kind
	ID       string
	Name     string
	Folder   string // owning folder name, empty for uncategorized endpoints
	Endpoint string // owning endpoint name for sub-resources
}

// Failure is one rejected creation call.
type Failure struct {
	Kind     remote.Kind
	Name     string
	Folder   string
	Endpoint string
	Err      error
}

func (f Failure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q", f.Kind, f.Name)
	if f.Endpoint != "" && f.Kind != remote.KindEndpoint {
		fmt.Fprintf(&b, " of endpoint %q", f.Endpoint)
	}
	if f.Folder != "" && f.Kind != remote.KindFolder {
		fmt.Fprintf(&b, " in folder %q", f.Folder)
	}
	fmt.Fprintf(&b, ": %v", f.Err)
	return b.String()
}

// Report describes what one import batch did. Entities created before a
// failure stay on the remote side and are listed here.
type Report struct {
	BatchID   string
	ProjectID string
	Created   []Entity
	Failures  []Failure
	// Skipped counts endpoints that were never dispatched because the batch
	// failed or was cancelled first.
	Skipped  int
	Started  time.Time
	Finished time.Time
}

func (r *Report) Succeeded() bool { return len(r.Failures) == 0 && r.Skipped == 0 }

// Count returns the number of created entities of kind.
func (r *Report) Count(kind remote.Kind) int {
	n := 0
	for _, e := range r.Created {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ImportError aggregates every failed call of a batch.
type ImportError struct {
	BatchID  string
	Failures []Failure
}

func (e *ImportError) Error() string {
	if len(e.Failures) == 1 {
		return "import failed: " + e.Failures[0].String()
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("import failed: %d creation calls failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *ImportError) Is(target error) bool { return target == ErrRemoteCreationFailed }

func (e *ImportError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}
