// Package registry maps normalized class names to decoders.
//
// Registration is an explicit build phase: a Builder collects types and
// Build returns an immutable Registry that is safe to share between
// concurrent decodes. Extend derives a new Registry, leaving the receiver
// untouched, for types discovered after a file was opened.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/protocol/cursor"
)

var (
	ErrTypeExists  = errors.New("registry: type already registered")
	ErrDecoderNil  = errors.New("registry: decoder is nil")
	ErrInvalidName = errors.New("registry: invalid type name")
)

// DecodeFunc decodes one object of a type. It receives the registry so that
// polymorphic members can be dispatched by name.
type DecodeFunc func(r *Registry, c cursor.Cursor) (any, cursor.Cursor, error)

// Trailer says how bytes left over after a keyed object decode are treated.
type Trailer int

const (
	// TrailerNone rejects any leftover byte.
	TrailerNone Trailer = iota
	// TrailerPadding keeps leftover bytes as an unexplained pad.
	TrailerPadding
	// TrailerChecksum expects an 8-byte big-endian checksum at the very end,
	// with anything before it kept as padding.
	TrailerChecksum
)

func (t Trailer) String() string {
	switch t {
	case TrailerNone:
		return "none"
	case TrailerPadding:
		return "padding"
	case TrailerChecksum:
		return "checksum"
	default:
		return fmt.Sprintf("trailer(%d)", int(t))
	}
}

// Type is one registered class.
type Type struct {
	Name    string
	Decode  DecodeFunc
	Trailer Trailer
}

var normalizer = strings.NewReplacer(
	":", "3a",
	"<", "3c",
	">", "3e",
	",", "2c",
	" ", "_",
	"*", "2a",
)

var denormalizer = strings.NewReplacer(
	"3a", ":",
	"3c", "<",
	"3e", ">",
	"2c", ",",
	"_", " ",
	"2a", "*",
)

// Normalize maps a C++ class name to the flat registry key space.
func Normalize(name string) string {
	return normalizer.Replace(name)
}

// Denormalize reverses Normalize. It is exact for names that contain neither
// an underscore nor one of the escape sequences to begin with.
func Denormalize(key string) string {
	return denormalizer.Replace(key)
}

// Builder accumulates types before a Registry is built.
type Builder struct {
	types map[string]Type
}

func NewBuilder() *Builder {
	return &Builder{types: make(map[string]Type)}
}

// Register adds a type under its normalized name.
func (b *Builder) Register(t Type) error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrInvalidName
	}
	if t.Decode == nil {
		return fmt.Errorf("%w: %s", ErrDecoderNil, t.Name)
	}
	key := Normalize(t.Name)
	if _, ok := b.types[key]; ok {
		return fmt.Errorf("%w: %s", ErrTypeExists, t.Name)
	}
	b.types[key] = t
	return nil
}

// MustRegister is Register for static built-in tables.
func (b *Builder) MustRegister(types ...Type) *Builder {
	for _, t := range types {
		if err := b.Register(t); err != nil {
			panic(err)
		}
	}
	return b
}

// Build freezes the builder contents into a Registry. The builder may keep
// being used; later registrations do not leak into the built registry.
func (b *Builder) Build() *Registry {
	types := make(map[string]Type, len(b.types))
	for k, v := range b.types {
		types[k] = v
	}
	return &Registry{types: types}
}

// Registry is an immutable name to decoder mapping.
type Registry struct {
	types map[string]Type
}

// Lookup resolves a class name, normalized or not.
func (r *Registry) Lookup(name string) (Type, error) {
	if r != nil {
		if t, ok := r.types[Normalize(name)]; ok {
			return t, nil
		}
	}
	return Type{}, &protocol.DecodeError{
		Op:     "registry.lookup",
		Path:   name,
		Offset: protocol.NoOffset,
		Err:    protocol.ErrUnknownType,
	}
}

// Has reports whether name resolves.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Decode looks name up and decodes one object from c.
func (r *Registry) Decode(name string, c cursor.Cursor) (any, cursor.Cursor, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, cursor.Cursor{}, err
	}
	return t.Decode(r, c)
}

// Extend returns a new registry holding r's types plus whatever fn registers.
func (r *Registry) Extend(fn func(b *Builder) error) (*Registry, error) {
	b := NewBuilder()
	if r != nil {
		for k, v := range r.types {
			b.types[k] = v
		}
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Names lists the registered keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for k := range r.types {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len is the number of registered types.
func (r *Registry) Len() int {
	return len(r.types)
}
