package ref

// Endpoint identifies exactly one (instance, port, slot) triple.
type Endpoint struct {
	Kernel Reference
	Index  []int
	Port   Identifier
	Slot   []int
}

// Ref returns kernel[index...].port[slot...].
func (e Endpoint) Ref() Reference {
	return e.Instance().AppendName(e.Port).AppendIndex(e.Slot...)
}

// Instance returns kernel[index...].
func (e Endpoint) Instance() Reference {
	return e.Kernel.AppendIndex(e.Index...)
}

func (e Endpoint) String() string { return e.Ref().String() }
