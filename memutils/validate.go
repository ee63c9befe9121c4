package memutils

// Validatable is anything that can check its own bookkeeping for consistency
type Validatable interface {
	Validate() error
}
