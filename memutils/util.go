package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~int64 | ~uint32 | ~uint64
}

// CheckPow2 returns PowerOfTwoError, annotated with name, unless number is a power of two
func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment. Alignment must be a power of two.
func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to the previous multiple of alignment. Alignment must be a power of two.
func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// IsAligned reports whether value is already a multiple of alignment
func IsAligned[T Number](value T, alignment T) bool {
	return value&(alignment-1) == 0
}

// CheckSize returns NegativeSizeError, annotated with name, if size is negative
func CheckSize(size int, name string) error {
	if size < 0 {
		return cerrors.Wrapf(NegativeSizeError, "%s is %d", name, size)
	}
	return nil
}
