package valueobject

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestParseCourseRef(t *testing.T) {
	id := uuid.MustParse("5f0c9b1e-3c2a-4f7e-9a51-2f1d7e8b6c40")

	tests := []struct {
		name     string
		raw      *string
		wantKind CourseRefKind
		wantText string
	}{
		{name: "nil_is_unknown", raw: nil, wantKind: CourseRefUnknown, wantText: ""},
		{name: "empty_is_unknown", raw: strPtr(""), wantKind: CourseRefUnknown, wantText: ""},
		{name: "blank_is_unknown", raw: strPtr("   \t"), wantKind: CourseRefUnknown, wantText: ""},
		{name: "uuid_is_id", raw: strPtr(id.String()), wantKind: CourseRefID, wantText: id.String()},
		{name: "uppercase_uuid_is_id", raw: strPtr("5F0C9B1E-3C2A-4F7E-9A51-2F1D7E8B6C40"), wantKind: CourseRefID, wantText: id.String()},
		{name: "nil_uuid_is_name", raw: strPtr(uuid.Nil.String()), wantKind: CourseRefName, wantText: uuid.Nil.String()},
		{name: "legacy_name", raw: strPtr("Barista Basics"), wantKind: CourseRefName, wantText: "Barista Basics"},
		{name: "legacy_name_kept_verbatim", raw: strPtr("  Barista Basics "), wantKind: CourseRefName, wantText: "  Barista Basics "},
		{name: "padded_uuid_is_id", raw: strPtr(" " + id.String() + "\n"), wantKind: CourseRefID, wantText: id.String()},
		{name: "truncated_uuid_is_name", raw: strPtr("5f0c9b1e-3c2a-4f7e"), wantKind: CourseRefName, wantText: "5f0c9b1e-3c2a-4f7e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := ParseCourseRef(tt.raw)
			assert.Equal(t, tt.wantKind, ref.Kind())
			assert.Equal(t, tt.wantText, ref.String())
		})
	}
}

func TestCourseRefAccessors(t *testing.T) {
	id := uuid.New()

	ref := CourseRefFromID(id)
	gotID, ok := ref.ID()
	assert.True(t, ok)
	assert.Equal(t, id, gotID)
	_, ok = ref.Name()
	assert.False(t, ok)

	nameRef := CourseRefFromName("Pastry 101")
	gotName, ok := nameRef.Name()
	assert.True(t, ok)
	assert.Equal(t, "Pastry 101", gotName)
	_, ok = nameRef.ID()
	assert.False(t, ok)

	assert.Equal(t, CourseRefUnknown, CourseRefFromID(uuid.Nil).Kind())
	assert.Equal(t, "unknown", CourseRefUnknown.String())
}

func TestNewArchiveScope(t *testing.T) {
	scope, err := NewArchiveScope("course")
	assert.NoError(t, err)
	assert.True(t, scope.IsCourse())

	scope, err = NewArchiveScope("all")
	assert.NoError(t, err)
	assert.False(t, scope.IsCourse())
	assert.Equal(t, "all", scope.String())

	_, err = NewArchiveScope("everything")
	assert.Error(t, err)
}

func TestIDTextForms(t *testing.T) {
	id := uuid.New()

	forms := IDTextForms(id)
	assert.Len(t, forms, 4)
	for _, form := range forms {
		assert.Equal(t, strings.ToLower(form), form)
		parsed, ok := ParseCourseRef(&form).ID()
		assert.True(t, ok, form)
		assert.Equal(t, id, parsed, form)

		upper := strings.ToUpper(form)
		parsed, ok = ParseCourseRef(&upper).ID()
		assert.True(t, ok, upper)
		assert.Equal(t, id, parsed, upper)
	}
}
