package rootfile

import (
	"sync"

	"github.com/danmuck/rootio/internal/protocol/cursor"
	"github.com/danmuck/rootio/internal/protocol/registry"
)

func directoryType(name string) registry.Type {
	return registry.Type{
		Name: name,
		Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
			return ReadDirectory(c)
		},
	}
}

func builtinTypes() []registry.Type {
	return []registry.Type{
		tfileType,
		keyListType,
		directoryType("TDirectory"),
		directoryType("TDirectoryFile"),
		AnchorType,
		{Name: "TNamed", Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
			return ReadTNamed(c)
		}},
		{Name: "TObjString", Decode: func(_ *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
			return ReadTObjString(c)
		}},
		{Name: "TList", Decode: func(r *registry.Registry, c cursor.Cursor) (any, cursor.Cursor, error) {
			return ReadTList(r, c)
		}},
	}
}

// RegisterBuiltins adds the classes this package decodes natively. It has
// the shape Registry.Extend expects, so a registry built from other types
// can take the built-ins on top.
func RegisterBuiltins(b *registry.Builder) error {
	for _, t := range builtinTypes() {
		if err := b.Register(t); err != nil {
			return err
		}
	}
	return nil
}

var builtins = sync.OnceValue(func() *registry.Registry {
	b := registry.NewBuilder()
	if err := RegisterBuiltins(b); err != nil {
		panic(err)
	}
	return b.Build()
})

// Builtins returns the shared registry of built-in classes. Extend it to
// add more; the returned registry itself is never modified.
func Builtins() *registry.Registry {
	return builtins()
}
