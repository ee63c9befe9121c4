//go:build debug_kms

package memutils

// DebugValidate panics if validatable reports inconsistent bookkeeping. Builds without
// the debug_kms tag compile it away.
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
