package normalization

import (
	"rollbook/internal/domain/valueobject"

	"github.com/google/uuid"
)

// DefaultFallbackCourseName is written to the archive when a course reference
// cannot be resolved to a registered course.
const DefaultFallbackCourseName = "course not registered"

// CourseDirectory maps course identifiers to display names. In course-scoped
// migrations it holds a single entry; in global migrations it holds every course.
type CourseDirectory struct {
	names map[uuid.UUID]string
	known map[string]struct{}
}

// NewCourseDirectory builds a directory from an id to name map.
func NewCourseDirectory(names map[uuid.UUID]string) *CourseDirectory {
	d := &CourseDirectory{
		names: make(map[uuid.UUID]string, len(names)),
		known: make(map[string]struct{}, len(names)),
	}
	for id, name := range names {
		d.Add(id, name)
	}
	return d
}

// Add registers a course in the directory.
func (d *CourseDirectory) Add(id uuid.UUID, name string) {
	d.names[id] = name
	d.known[name] = struct{}{}
}

// Lookup returns the display name for a course id.
func (d *CourseDirectory) Lookup(id uuid.UUID) (string, bool) {
	if d == nil {
		return "", false
	}
	name, ok := d.names[id]
	return name, ok
}

// IsKnownName reports whether name belongs to a registered course.
func (d *CourseDirectory) IsKnownName(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.known[name]
	return ok
}

// Len returns the number of courses in the directory.
func (d *CourseDirectory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

// Config holds configuration options for course reference normalization.
type Config struct {
	// FallbackName is used for dangling, unknown or malformed references.
	FallbackName string
}

// DefaultConfig returns the default normalization configuration.
func DefaultConfig() *Config {
	return &Config{FallbackName: DefaultFallbackCourseName}
}

// CourseNameNormalizer resolves attendee course references into the
// human-readable course name stored in the archive.
type CourseNameNormalizer struct {
	fallback string
}

// NewCourseNameNormalizer creates a normalizer with the given configuration.
func NewCourseNameNormalizer(config *Config) *CourseNameNormalizer {
	if config == nil || config.FallbackName == "" {
		config = DefaultConfig()
	}
	return &CourseNameNormalizer{fallback: config.FallbackName}
}

// FallbackName returns the sentinel written for unresolved references.
func (n *CourseNameNormalizer) FallbackName() string {
	return n.fallback
}

// Resolve maps a parsed reference to a course name. It is total: every input
// yields either a registered course name or the fallback sentinel, never a raw
// identifier.
func (n *CourseNameNormalizer) Resolve(ref valueobject.CourseRef, directory *CourseDirectory) string {
	switch ref.Kind() {
	case valueobject.CourseRefID:
		id, _ := ref.ID()
		if name, ok := directory.Lookup(id); ok && name != "" {
			return name
		}
	case valueobject.CourseRefName:
		name, _ := ref.Name()
		if directory.IsKnownName(name) {
			return name
		}
	case valueobject.CourseRefUnknown:
	}
	return n.fallback
}

// ResolveRaw parses and resolves a stored course reference in one step.
func (n *CourseNameNormalizer) ResolveRaw(raw *string, directory *CourseDirectory) string {
	return n.Resolve(valueobject.ParseCourseRef(raw), directory)
}
