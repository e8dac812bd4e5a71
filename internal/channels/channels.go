// Package channels decides which per-track scalar attributes a renderer
// writes and in which order.
//
// Channel count and per-track values are both derived from one ordered
// attribute list, so they cannot disagree.
package channels

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/banshee-data/trackraster/internal/geom"
	"github.com/banshee-data/trackraster/internal/scene"
)

var (
	// ErrUnsupportedAttribute is returned when an attribute is unknown or not
	// available for an agent class.
	ErrUnsupportedAttribute = errors.New("channels: unsupported attribute")
	// ErrUnknownClass is returned for agent classes other than vehicles and
	// pedestrians.
	ErrUnknownClass = errors.New("channels: unknown agent class")
)

// Attribute is one track property that can be rasterised.
type Attribute int

// Attributes in canonical channel order.
const (
	Occupancy Attribute = iota
	Velocity
	Acceleration
	Yaw
)

var attributeNames = [...]string{"occupancy", "velocity", "acceleration", "yaw"}

func (a Attribute) String() string {
	if a < 0 || int(a) >= len(attributeNames) {
		return fmt.Sprintf("Attribute(%d)", int(a))
	}
	return attributeNames[a]
}

// Width is the number of channels the attribute occupies.
func (a Attribute) Width() int {
	switch a {
	case Velocity, Acceleration:
		return 2
	default:
		return 1
	}
}

// ParseAttribute maps a configuration key to an Attribute.
func ParseAttribute(name string) (Attribute, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range attributeNames {
		if n == key {
			return Attribute(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAttribute, name)
}

// Class is an agent class with its own renderer.
type Class string

const (
	Vehicles    Class = "vehicles"
	Pedestrians Class = "pedestrians"
)

// ParseClass maps a renderer kind from configuration to a Class.
func ParseClass(kind string) (Class, error) {
	c := Class(kind)
	if c.Allowed() == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownClass, kind)
	}
	return c, nil
}

// Allowed returns the attributes a class supports, in canonical order.
func (c Class) Allowed() []Attribute {
	switch c {
	case Vehicles:
		return []Attribute{Occupancy, Velocity, Acceleration, Yaw}
	case Pedestrians:
		return []Attribute{Occupancy, Velocity}
	default:
		return nil
	}
}

// Encoder computes channel values for one agent class and attribute set.
type Encoder struct {
	class Class
	attrs []Attribute
	width int
}

// NewEncoder validates attrs against the class and sorts them into
// canonical order. Duplicates are collapsed.
func NewEncoder(class Class, attrs []Attribute) (Encoder, error) {
	allowed := class.Allowed()
	if allowed == nil {
		return Encoder{}, fmt.Errorf("%w: unknown class %q", ErrUnsupportedAttribute, class)
	}
	var ordered []Attribute
	for _, a := range allowed {
		if slices.Contains(attrs, a) {
			ordered = append(ordered, a)
		}
	}
	for _, a := range attrs {
		if !slices.Contains(allowed, a) {
			return Encoder{}, fmt.Errorf("%w: %s for %s", ErrUnsupportedAttribute, a, class)
		}
	}
	e := Encoder{class: class, attrs: ordered}
	for _, a := range ordered {
		e.width += a.Width()
	}
	return e, nil
}

// Class returns the agent class.
func (e Encoder) Class() Class { return e.class }

// Attributes returns the enabled attributes in channel order.
func (e Encoder) Attributes() []Attribute { return slices.Clone(e.attrs) }

// NumChannels is the number of channels one timestep occupies.
func (e Encoder) NumChannels() int { return e.width }

// Values returns the per-channel fill values for a track. Velocity and
// acceleration go through the linear part of tf; yaw is the raw heading.
// len(Values(...)) == NumChannels() always.
func (e Encoder) Values(t *scene.Track, tf geom.Transform) []float32 {
	return e.AppendValues(make([]float32, 0, e.width), t, tf)
}

// AppendValues appends the fill values for t to dst.
func (e Encoder) AppendValues(dst []float32, t *scene.Track, tf geom.Transform) []float32 {
	for _, a := range e.attrs {
		switch a {
		case Occupancy:
			dst = append(dst, 1)
		case Velocity:
			v := tf.ApplyVector(t.Velocity)
			dst = append(dst, float32(v.X), float32(v.Y))
		case Acceleration:
			v := tf.ApplyVector(t.Acceleration)
			dst = append(dst, float32(v.X), float32(v.Y))
		case Yaw:
			dst = append(dst, float32(t.Yaw))
		}
	}
	return dst
}

// ChannelNames labels each channel, e.g. "vehicles_velocity_x".
func (e Encoder) ChannelNames() []string {
	names := make([]string, 0, e.width)
	for _, a := range e.attrs {
		base := string(e.class) + "_" + a.String()
		if a.Width() == 2 {
			names = append(names, base+"_x", base+"_y")
			continue
		}
		names = append(names, base)
	}
	return names
}
