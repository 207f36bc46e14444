package normalization

// ResolveCourseName resolves a stored course reference with the default
// fallback sentinel. It creates a normalizer on each call to avoid global state.
func ResolveCourseName(raw *string, directory *CourseDirectory) string {
	return NewCourseNameNormalizer(DefaultConfig()).ResolveRaw(raw, directory)
}
