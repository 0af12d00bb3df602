package cursor

// Refs is the local-reference table of one streamed-object decode: class
// names introduced by a new-class tag, keyed by the relative position they
// were introduced at. A table belongs to a single call tree and is not safe
// for concurrent use.
type Refs struct {
	names map[int64]string
}

func NewRefs() *Refs {
	return &Refs{names: make(map[int64]string)}
}

// Put records name at position pos.
func (r *Refs) Put(pos int64, name string) {
	r.names[pos] = name
}

// Get returns the class name recorded at pos.
func (r *Refs) Get(pos int64) (string, bool) {
	name, ok := r.names[pos]
	return name, ok
}

// Len is the number of recorded references.
func (r *Refs) Len() int {
	return len(r.names)
}
