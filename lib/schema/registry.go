package schema

// Registry maps a named type to its schema node, resolved by codec.Build
// when it encounters a Reference. A Registry is a snapshot: codec.Build and
// codec.BuildAll never mutate the Registry they are given.
type Registry map[string]Node

// NewRegistry creates an empty Registry.
func NewRegistry() Registry {
	return make(Registry)
}

// Resolve looks up a named schema.
func (r Registry) Resolve(name string) (Node, bool) {
	n, ok := r[name]
	return n, ok
}

// Names returns every registered name, in no particular order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}
