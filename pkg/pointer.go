package pkg

func ToPtr[T any](v T) *T {
	return &v
}

// FromPtrOr dereferences v, or returns fallback when v is nil.
func FromPtrOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}
