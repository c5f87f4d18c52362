package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/aster/pkg/models"
)

func TestProfileCompleteness(t *testing.T) {
	tests := []struct {
		name     string
		ids      []models.Identifier
		expected float64
	}{
		{
			name:     "no identifiers",
			ids:      nil,
			expected: 0,
		},
		{
			name: "phone only",
			ids: []models.Identifier{
				{Type: models.IdentifierTypePhone, Value: "+447911123456"},
			},
			expected: 0.25,
		},
		{
			name: "duplicate types count once",
			ids: []models.Identifier{
				{Type: models.IdentifierTypeEmail, Value: "a@example.com"},
				{Type: models.IdentifierTypeEmail, Value: "b@example.com"},
			},
			expected: 0.25,
		},
		{
			name: "unverified handle does not count",
			ids: []models.Identifier{
				{Type: models.IdentifierTypeHandle, Value: "jdoe", IsVerified: false},
			},
			expected: 0,
		},
		{
			name: "verified handle counts",
			ids: []models.Identifier{
				{Type: models.IdentifierTypeHandle, Value: "jdoe", IsVerified: true},
			},
			expected: 0.25,
		},
		{
			name: "all facets present",
			ids: []models.Identifier{
				{Type: models.IdentifierTypePhone, Value: "+447911123456"},
				{Type: models.IdentifierTypeEmail, Value: "a@example.com"},
				{Type: models.IdentifierTypeName, Value: "jane doe"},
				{Type: models.IdentifierTypeHandle, Value: "jdoe", IsVerified: true},
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ProfileCompleteness(tt.ids), 0.0001)
		})
	}
}
