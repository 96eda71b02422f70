package flow

import "github.com/google/uuid"

// newID generates a stable, collision-resistant identifier for run ids,
// checkpoint ids, and external request ids.
func newID() string {
	return uuid.NewString()
}
