package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialRunIDs_Increments(t *testing.T) {
	gen := NewSequentialRunIDs("harvest")

	assert.Equal(t, "harvest-0001", gen.Generate())
	assert.Equal(t, "harvest-0002", gen.Generate())
}

func TestSequentialRunIDs_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequentialRunIDs("")

	assert.Equal(t, "test-run-0001", gen.Generate())
}
