package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSequenceConflict(t *testing.T) {
	uniqueViolation := &pq.Error{Code: pqUniqueViolation}

	assert.True(t, isSequenceConflict(uniqueViolation))
	assert.True(t, isSequenceConflict(fmt.Errorf("failed to append: %w", uniqueViolation)))

	assert.False(t, isSequenceConflict(&pq.Error{Code: "23503"}), "other constraint classes pass through")
	assert.False(t, isSequenceConflict(errors.New("connection reset")))
	assert.False(t, isSequenceConflict(nil))
}
