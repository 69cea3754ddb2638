package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Short returns the last eight hex digits, used as a file-name suffix.
// The leading digits of a v7 ID are a millisecond timestamp and collide
// for IDs minted close together.
func (id ID) Short() string {
	s := strings.ReplaceAll(string(id), "-", "")
	if len(s) > 8 {
		return s[len(s)-8:]
	}
	return s
}

// Domain-specific ID types
type (
	ArtifactID ID
	SampleID   ID
)

func (id ArtifactID) String() string { return ID(id).String() }
func (id SampleID) String() string   { return ID(id).String() }

// ParseSampleID parses a string into SampleID
func ParseSampleID(s string) (SampleID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("sample ID cannot be empty")
	}
	return SampleID(s), nil
}

// ArtifactKind defines types of persisted outputs
type ArtifactKind string

const (
	// ArtifactPosterior is a retained posterior sample matrix.
	ArtifactPosterior ArtifactKind = "posterior"
	// ArtifactPrediction is a posterior predictive matrix over the case grid.
	ArtifactPrediction ArtifactKind = "prediction"
)
