package wire

// Parameters is the generic key/value map carried by several control
// messages (spec §4.1). Keys are varints; values are opaque byte
// strings. At most MaxParameters entries are accepted on decode and
// duplicate keys are rejected.
type Parameters map[uint64][]byte

// Get returns the raw value for key, if present.
func (p Parameters) Get(key uint64) ([]byte, bool) {
	v, ok := p[key]
	return v, ok
}

// Set stores value under key.
func (p Parameters) Set(key uint64, value []byte) {
	p[key] = value
}
