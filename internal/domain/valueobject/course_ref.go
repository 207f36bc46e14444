package valueobject

import (
	"strings"

	"github.com/google/uuid"
)

// CourseRefKind tags the shape of a stored course reference.
type CourseRefKind int

// Course reference kinds.
const (
	CourseRefUnknown CourseRefKind = iota
	CourseRefID
	CourseRefName
)

// String returns the string representation of the kind.
func (k CourseRefKind) String() string {
	switch k {
	case CourseRefID:
		return "id"
	case CourseRefName:
		return "name"
	default:
		return "unknown"
	}
}

// CourseRef is the parsed form of an attendee's course reference column.
//
// Newer rows store the course identifier, legacy rows store the course name
// directly, and some rows hold nothing usable at all. Exactly one of id or name
// is meaningful, selected by kind.
type CourseRef struct {
	kind CourseRefKind
	id   uuid.UUID
	name string
}

// ParseCourseRef classifies a raw course reference. It never fails: anything that
// is neither an identifier nor non-blank text is an unknown reference. Name
// references keep the stored text verbatim so they compare exactly against
// registered course names.
func ParseCourseRef(raw *string) CourseRef {
	if raw == nil {
		return CourseRef{kind: CourseRefUnknown}
	}

	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return CourseRef{kind: CourseRefUnknown}
	}

	if id, err := uuid.Parse(trimmed); err == nil && id != uuid.Nil {
		return CourseRef{kind: CourseRefID, id: id}
	}

	return CourseRef{kind: CourseRefName, name: *raw}
}

// CourseRefFromID builds an identifier reference.
func CourseRefFromID(id uuid.UUID) CourseRef {
	if id == uuid.Nil {
		return CourseRef{kind: CourseRefUnknown}
	}
	return CourseRef{kind: CourseRefID, id: id}
}

// IDTextForms lists the lowercase spellings of id that ParseCourseRef accepts
// as an identifier reference, so stores can select every row that parses to id.
func IDTextForms(id uuid.UUID) []string {
	canonical := id.String()
	return []string{
		canonical,
		strings.ReplaceAll(canonical, "-", ""),
		"{" + canonical + "}",
		"urn:uuid:" + canonical,
	}
}

// CourseRefFromName builds a reference from stored text. Text that parses as an
// identifier is classified as one.
func CourseRefFromName(name string) CourseRef {
	return ParseCourseRef(&name)
}

// Kind returns the reference kind.
func (r CourseRef) Kind() CourseRefKind {
	return r.kind
}

// ID returns the referenced course id and whether the reference is an id.
func (r CourseRef) ID() (uuid.UUID, bool) {
	return r.id, r.kind == CourseRefID
}

// Name returns the legacy course name and whether the reference is a name.
func (r CourseRef) Name() (string, bool) {
	return r.name, r.kind == CourseRefName
}

// String returns the stored text form of the reference.
func (r CourseRef) String() string {
	switch r.kind {
	case CourseRefID:
		return r.id.String()
	case CourseRefName:
		return r.name
	default:
		return ""
	}
}
