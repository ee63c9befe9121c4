package driver

// Interceptor is the set of screen hooks the driver decorates. The host calls each
// method in place of its own hook and passes its own implementation as next.
type Interceptor interface {
	CreateScreenResources(next func() error) error
	BlockHandler(next func())
	CloseScreen(next func() error) error
	SaveScreen(blank bool) error
}

// Host is the display server the driver is loaded into
type Host interface {
	// Intercept installs i in front of the host's screen hooks. The returned function
	// removes it again.
	Intercept(i Interceptor) (remove func())
	// InitAcceleration attaches the rendering layer to screen. Failure leaves the
	// screen running without acceleration.
	InitAcceleration(screen *Screen) error
	// FiniAcceleration detaches the rendering layer
	FiniAcceleration(screen *Screen)
}
