// Package types provides the core data types for the chatkit orchestrator.
package types

// Location identifies the logical surface a session belongs to.
// It is fixed when the session is created and never changes.
type Location string

const (
	LocationPanel          Location = "panel"
	LocationEditingSession Location = "editing-session"
	LocationEditor         Location = "editor"
	LocationTerminal       Location = "terminal"
)

// Durable reports whether sessions created at this location are eligible
// for persistence across process restarts.
func (l Location) Durable() bool {
	return l == LocationPanel || l == LocationEditingSession
}

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	switch l {
	case LocationPanel, LocationEditingSession, LocationEditor, LocationTerminal:
		return true
	}
	return false
}
