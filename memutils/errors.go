package memutils

import "github.com/pkg/errors"

var (
	// PowerOfTwoError is wrapped by CheckPow2 when a page size or alignment is not a power of two
	PowerOfTwoError = errors.New("number must be a power of two")
	// NegativeSizeError is wrapped by CheckSize
	NegativeSizeError = errors.New("size must not be negative")
)
