package bo

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/radeon-kms/adapter/internal/utils"
	"github.com/radeon-kms/adapter/kms"
)

// Object is one buffer object. Its domain, size and alignment are fixed when it is
// allocated. Mapping state is reference counted and guarded by the object's own mutex.
type Object struct {
	handle    kms.BufferHandle
	domain    kms.Domain
	size      int
	alignment uint
	flags     AllocateFlags
	name      string

	mapMutex      utils.OptionalMutex
	mapReferences int
	mapData       []byte

	released bool
}

func (o *Object) Handle() kms.BufferHandle {
	return o.handle
}

func (o *Object) Domain() kms.Domain {
	return o.domain
}

// Size is the allocated size in bytes, already rounded up to the page size
func (o *Object) Size() int {
	return o.size
}

func (o *Object) Alignment() uint {
	return o.alignment
}

func (o *Object) Flags() AllocateFlags {
	return o.flags
}

func (o *Object) Name() string {
	o.mapMutex.Lock()
	defer o.mapMutex.Unlock()

	return o.name
}

// SetName labels the object in statistics output
func (o *Object) SetName(name string) {
	o.mapMutex.Lock()
	defer o.mapMutex.Unlock()

	o.name = name
}

// MappedData returns the CPU mapping, or nil if the object is not mapped
func (o *Object) MappedData() []byte {
	o.mapMutex.Lock()
	defer o.mapMutex.Unlock()

	return o.mapData
}

// MapReferences returns the number of outstanding Map calls
func (o *Object) MapReferences() int {
	o.mapMutex.Lock()
	defer o.mapMutex.Unlock()

	return o.mapReferences
}

func (o *Object) printParameters(json *jwriter.ObjectState) {
	o.mapMutex.Lock()
	defer o.mapMutex.Unlock()

	json.Name("Handle").Int(int(o.handle))
	json.Name("Domain").String(o.domain.String())
	json.Name("Size").Int(o.size)
	json.Name("Alignment").Int(int(o.alignment))
	if o.flags != 0 {
		json.Name("Flags").String(o.flags.String())
	}
	if o.mapReferences > 0 {
		json.Name("MapReferences").Int(o.mapReferences)
	}
	if o.name != "" {
		json.Name("Name").String(o.name)
	}
}
