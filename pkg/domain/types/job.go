package types

import "github.com/google/uuid"

// JobID identifies a single deployment job
type JobID string

// NewJobID returns a new random JobID
func NewJobID() JobID {
	return JobID(uuid.NewString())
}

func (x JobID) String() string {
	return string(x)
}
