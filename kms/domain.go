package kms

import "strings"

// Domain identifies a memory pool with independent capacity accounting. The values
// match the kernel's GEM domain bits so that they can be passed through unchanged.
type Domain uint32

const (
	// DomainCPU is plain system memory that the GPU cannot address
	DomainCPU Domain = 1 << iota
	// DomainGTT is system memory reachable by the GPU through the shared aperture
	DomainGTT
	// DomainVRAM is dedicated video memory
	DomainVRAM
)

var domainMapping = map[Domain]string{
	DomainCPU:  "DomainCPU",
	DomainGTT:  "DomainGTT",
	DomainVRAM: "DomainVRAM",
}

func (d Domain) String() string {
	if name, ok := domainMapping[d]; ok {
		return name
	}

	var names []string
	for bit := DomainCPU; bit <= DomainVRAM; bit <<= 1 {
		if d&bit != 0 {
			names = append(names, domainMapping[bit])
		}
	}
	if len(names) == 0 {
		return "DomainNone"
	}
	return strings.Join(names, "|")
}

// Domains lists the domains a buffer object can be created in
var Domains = []Domain{DomainGTT, DomainVRAM}

// Valid reports whether d names exactly one domain a buffer object can be created in
func (d Domain) Valid() bool {
	return d == DomainGTT || d == DomainVRAM
}
