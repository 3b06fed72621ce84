package device

// Device is a controllable switch as recorded in the registry.
// The bridge treats devices as read-only and never caches them beyond a
// single call.
type Device struct {
	// ID is stable and unique within one owner.
	ID    string `json:"id" yaml:"id"`
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
	// Model selects the capability set. Empty means the configured default.
	Model string `json:"model,omitempty" yaml:"model"`
}

// IDSet is a set of device IDs.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members of devices as a set.
func IDs(devices []Device) IDSet {
	set := make(IDSet, len(devices))
	for _, d := range devices {
		set[d.ID] = struct{}{}
	}
	return set
}
