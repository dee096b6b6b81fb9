// Package identity issues stable, opaque client identifiers for the
// short-lived identifiers NDC backends mint on every call, and resolves
// them back to the backend-native identifier that produced them.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotMapped indicates a client identifier was never issued by this
// mapper instance. Callers translate it into the user-facing "offer not
// found or expired" class of error.
var ErrNotMapped = errors.New("identity: client id was not issued by this mapper")

// Mapper is a bidirectional map between backend-native identifiers and the
// opaque identifiers exposed to clients. One instance covers one pipeline
// run (a single backend response); it grows monotonically and is never
// merged with another instance implicitly.
//
// A Mapper is not safe for concurrent use. Pipeline runs are request-local,
// so no locking is layered on top.
type Mapper struct {
	forward map[string]string
	reverse map[string]string
	newID   func() string
}

// NewMapper returns an empty mapper.
func NewMapper() *Mapper {
	return &Mapper{
		forward: map[string]string{},
		reverse: map[string]string{},
		newID:   func() string { return uuid.NewString() },
	}
}

// NewMapperFromExport restores a mapper from a previously exported pair
// set, e.g. one stored alongside the raw backend response it was derived
// from. Map and Reverse behave identically to the pre-export instance.
func NewMapperFromExport(pairs map[string]string) *Mapper {
	m := NewMapper()
	for nativeID, clientID := range pairs {
		m.forward[nativeID] = clientID
		m.reverse[clientID] = nativeID
	}
	return m
}

// Map returns the client identifier for a backend-native identifier,
// allocating a new opaque id on first sight. Repeated calls for the same
// native id return the same client id.
func (m *Mapper) Map(nativeID string) string {
	if clientID, ok := m.forward[nativeID]; ok {
		return clientID
	}
	clientID := m.newID()
	m.forward[nativeID] = clientID
	m.reverse[clientID] = nativeID
	return clientID
}

// Reverse resolves a client identifier back to the backend-native
// identifier it was issued for.
func (m *Mapper) Reverse(clientID string) (string, error) {
	nativeID, ok := m.reverse[clientID]
	if !ok {
		return "", fmt.Errorf("reverse %q: %w", clientID, ErrNotMapped)
	}
	return nativeID, nil
}

// Export returns the full native-to-client pair set as a flat map suitable
// for persistence. The returned map is a copy.
func (m *Mapper) Export() map[string]string {
	out := make(map[string]string, len(m.forward))
	for nativeID, clientID := range m.forward {
		out[nativeID] = clientID
	}
	return out
}

// Len reports the number of issued identifiers.
func (m *Mapper) Len() int {
	return len(m.forward)
}
