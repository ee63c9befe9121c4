// Package cleanup runs undo functions in reverse order unless the operation that
// registered them succeeds.
//
// Typical use:
//
//	cu := cleanup.Make(func() error { return dev.Close() })
//	defer cu.Clean()
//	...
//	cu.Add(func() error { return manager.Release(front) })
//	...
//	return cu.Release(), nil
package cleanup

import (
	"github.com/hashicorp/go-multierror"
)

// Cleanup holds undo functions, run last-added first
type Cleanup struct {
	cleaners []func() error
	names    []string
}

// Make creates a Cleanup that starts with f. A nil f is ignored.
func Make(f func() error) Cleanup {
	var c Cleanup
	c.Add(f)
	return c
}

// Add registers f to run before every function already held
func (c *Cleanup) Add(f func() error) {
	c.AddNamed("", f)
}

// AddNamed is Add with a label reported alongside f's error
func (c *Cleanup) AddNamed(name string, f func() error) {
	if f == nil {
		return
	}
	c.cleaners = append(c.cleaners, f)
	c.names = append(c.names, name)
}

// Len returns the number of undo functions held
func (c *Cleanup) Len() int {
	return len(c.cleaners)
}

// Clean runs every held function in reverse registration order and empties the
// Cleanup, so calling it twice runs nothing the second time. Every function runs even
// when an earlier one fails; the failures are collected into the returned error.
func (c *Cleanup) Clean() error {
	var result *multierror.Error
	for i := len(c.cleaners) - 1; i >= 0; i-- {
		if err := c.cleaners[i](); err != nil {
			if c.names[i] != "" {
				err = &namedError{name: c.names[i], err: err}
			}
			result = multierror.Append(result, err)
		}
	}
	c.cleaners = nil
	c.names = nil
	return result.ErrorOrNil()
}

// Release hands the held functions to a new Cleanup and empties this one. Use it to
// keep undo work alive past the point where the registering operation succeeded.
func (c *Cleanup) Release() Cleanup {
	released := Cleanup{cleaners: c.cleaners, names: c.names}
	c.cleaners = nil
	c.names = nil
	return released
}

type namedError struct {
	name string
	err  error
}

func (e *namedError) Error() string {
	return e.name + ": " + e.err.Error()
}

func (e *namedError) Unwrap() error {
	return e.err
}
