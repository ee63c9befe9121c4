//go:build !debug_kms

package memutils

// DebugValidate does nothing unless built with the debug_kms tag
func DebugValidate(validatable Validatable) {}
