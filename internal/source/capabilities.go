package source

import "strings"

// Capability represents a channel a raw spectrum source can supply.
// Capabilities use a bitmask so a source can advertise several at once.
type Capability uint8

const (
	// Spectrum is a per-diameter concentration field (linear or log-encoded).
	Spectrum Capability = 1 << 0

	// Counts is a raw particle count matrix, per diameter and optionally per velocity class.
	Counts Capability = 1 << 1

	// Velocity is a measured fall velocity per diameter bin.
	Velocity Capability = 1 << 2

	// Intensity is the instrument's own rain rate estimate.
	Intensity Capability = 1 << 3

	// Reflectivity is the instrument's own radar reflectivity estimate.
	Reflectivity Capability = 1 << 4

	// PrecipCode is a precipitation type code per time step.
	PrecipCode Capability = 1 << 5
)

var allCapabilities = []Capability{Spectrum, Counts, Velocity, Intensity, Reflectivity, PrecipCode}

// String returns the human-readable name of a capability.
func (c Capability) String() string {
	switch c {
	case Spectrum:
		return "Spectrum"
	case Counts:
		return "Counts"
	case Velocity:
		return "Velocity"
	case Intensity:
		return "Intensity"
	case Reflectivity:
		return "Reflectivity"
	case PrecipCode:
		return "PrecipCode"
	default:
		return "Unknown"
	}
}

// Capabilities is a set of capabilities.
type Capabilities uint8

// Has reports whether cap is in the set.
func (c Capabilities) Has(cap Capability) bool {
	return (uint8(c) & uint8(cap)) != 0
}

// Add adds a capability to the set.
func (c *Capabilities) Add(cap Capability) {
	*c = Capabilities(uint8(*c) | uint8(cap))
}

// List returns the capabilities in the set in declaration order.
func (c Capabilities) List() []Capability {
	var caps []Capability
	for _, cap := range allCapabilities {
		if c.Has(cap) {
			caps = append(caps, cap)
		}
	}
	return caps
}

// String returns a comma-separated list of the capabilities in the set.
func (c Capabilities) String() string {
	caps := c.List()
	if len(caps) == 0 {
		return "None"
	}
	strs := make([]string, len(caps))
	for i, cap := range caps {
		strs[i] = cap.String()
	}
	return strings.Join(strs, ", ")
}
