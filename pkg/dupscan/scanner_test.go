package dupscan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/aster/pkg/models"
)

func TestOverlapWeight(t *testing.T) {
	assert.Equal(t, 1.0, overlapWeight(models.IdentifierTypePhone))
	assert.Equal(t, 1.0, overlapWeight(models.IdentifierTypeEmail))
	assert.Equal(t, 0.8, overlapWeight(models.IdentifierTypeHandle))
	assert.Equal(t, 0.5, overlapWeight(models.IdentifierTypeName))
}

func TestPairEvidenceAccumulates(t *testing.T) {
	tests := []struct {
		name     string
		overlaps []models.CandidateOverlap
		expected float64
	}{
		{
			name:     "shared phone is certain",
			overlaps: []models.CandidateOverlap{{Type: models.IdentifierTypePhone, Value: "+447473880264"}},
			expected: 1.0,
		},
		{
			name:     "shared handle alone is below the merge threshold",
			overlaps: []models.CandidateOverlap{{Type: models.IdentifierTypeHandle, Value: "georger"}},
			expected: 0.8,
		},
		{
			name:     "shared name alone is weak",
			overlaps: []models.CandidateOverlap{{Type: models.IdentifierTypeName, Value: "george roberts"}},
			expected: 0.5,
		},
		{
			name: "handle plus name clears the threshold",
			overlaps: []models.CandidateOverlap{
				{Type: models.IdentifierTypeHandle, Value: "georger"},
				{Type: models.IdentifierTypeName, Value: "george roberts"},
			},
			expected: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &pairEvidence{}
			for _, o := range tt.overlaps {
				ev.addOverlap(o)
			}
			assert.InDelta(t, tt.expected, ev.confidence, 0.0001)
			assert.Len(t, ev.overlaps, len(tt.overlaps))
		})
	}
}
