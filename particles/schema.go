package particles

import (
	"fmt"
	"strings"
)

// AttributeKind is the storage type of a particle attribute.
type AttributeKind uint8

const (
	AttributeFloat AttributeKind = iota
	AttributeFloat3
)

func (k AttributeKind) String() string {
	switch k {
	case AttributeFloat:
		return "float"
	case AttributeFloat3:
		return "float3"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Names of the attributes every particle carries.
const (
	AttrPosition = "Position"
	AttrVelocity = "Velocity"
	AttrAge      = "Age"
)

// Attribute is a named per-particle column.
type Attribute struct {
	Name string
	Kind AttributeKind
}

// Float declares a scalar attribute.
func Float(name string) Attribute { return Attribute{Name: name, Kind: AttributeFloat} }

// Float3 declares a vector attribute.
func Float3(name string) Attribute { return Attribute{Name: name, Kind: AttributeFloat3} }

// Column slots of the core attributes inside a block.
const (
	positionColumn = 0
	velocityColumn = 1
	ageColumn      = 0
)

// Schema is the fixed attribute layout shared by every block of one
// container. Position, Velocity and Age are always present.
type Schema struct {
	attrs   []Attribute
	columns map[string]int // name -> index into the kind-specific column list

	numFloat  int
	numFloat3 int
}

// NewSchema builds a schema holding the core attributes plus extra.
// Repeated names with the same kind are merged; a name declared with two
// different kinds is rejected.
func NewSchema(extra ...Attribute) (*Schema, error) {
	s := &Schema{columns: make(map[string]int)}
	core := []Attribute{Float3(AttrPosition), Float3(AttrVelocity), Float(AttrAge)}
	for _, a := range append(core, extra...) {
		if err := s.add(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) add(a Attribute) error {
	if a.Name == "" {
		return fmt.Errorf("%w: attribute with empty name", ErrInvalidDescription)
	}
	if existing, ok := s.Lookup(a.Name); ok {
		if existing.Kind != a.Kind {
			return fmt.Errorf("%w: attribute %q declared as %s and %s",
				ErrInvalidDescription, a.Name, existing.Kind, a.Kind)
		}
		return nil
	}

	switch a.Kind {
	case AttributeFloat:
		s.columns[a.Name] = s.numFloat
		s.numFloat++
	case AttributeFloat3:
		s.columns[a.Name] = s.numFloat3
		s.numFloat3++
	default:
		return fmt.Errorf("%w: attribute %q has unknown kind %s", ErrInvalidDescription, a.Name, a.Kind)
	}
	s.attrs = append(s.attrs, a)
	return nil
}

// Attributes returns the attributes in declaration order.
func (s *Schema) Attributes() []Attribute {
	out := make([]Attribute, len(s.attrs))
	copy(out, s.attrs)
	return out
}

// Lookup finds an attribute by name.
func (s *Schema) Lookup(name string) (Attribute, bool) {
	for _, a := range s.attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Has reports whether the schema holds a with the same kind.
func (s *Schema) Has(a Attribute) bool {
	existing, ok := s.Lookup(a.Name)
	return ok && existing.Kind == a.Kind
}

// column returns the column index of name if it exists with the given kind.
func (s *Schema) column(name string, kind AttributeKind) (int, error) {
	a, ok := s.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: no attribute %q", ErrInvalidDescription, name)
	}
	if a.Kind != kind {
		return 0, fmt.Errorf("%w: attribute %q is %s, not %s", ErrInvalidDescription, name, a.Kind, kind)
	}
	return s.columns[name], nil
}

func (s *Schema) String() string {
	parts := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		parts[i] = a.Name + ":" + a.Kind.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
