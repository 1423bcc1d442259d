// Package ids provides identifier generation shared by every subsystem.
package ids

import "github.com/google/uuid"

// New returns a new globally-unique identifier string, prefixed so that
// log lines and dashboard payloads are self-describing at a glance.
func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
