package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
		delta    float64
	}{
		{"identical", "george roberts", "george roberts", 1.0, 0.0001},
		{"empty left", "", "george", 0.0, 0.0001},
		{"empty right", "george", "", 0.0, 0.0001},
		{"transposition", "martha", "marhta", 0.961, 0.01},
		{"classic pair", "dwayne", "duane", 0.84, 0.01},
		{"unrelated", "george", "xyzzy", 0.0, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.JaroWinkler(tt.a, tt.b), tt.delta)
		})
	}
}

func TestJaroWinklerBounds(t *testing.T) {
	scorer := NewScorer()
	pairs := [][2]string{
		{"george r", "george roberts"},
		{"a", "b"},
		{"short", "a much longer string entirely"},
	}
	for _, p := range pairs {
		score := scorer.JaroWinkler(p[0], p[1])
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestLevenshtein(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 0, scorer.LevenshteinDistance("kitten", "kitten"))
	assert.Equal(t, 3, scorer.LevenshteinDistance("kitten", "sitting"))
	assert.InDelta(t, 1.0-3.0/7.0, scorer.Levenshtein("kitten", "sitting"), 0.0001)
	assert.InDelta(t, 1.0, scorer.Levenshtein("", ""), 0.0001)
}

func TestCosine(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"opposite clamps to zero", []float64{1, 0}, []float64{-1, 0}, 0.0},
		{"empty", nil, []float64{1}, 0.0},
		{"mismatched lengths", []float64{1, 2}, []float64{1, 2, 3}, 0.0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.Cosine(tt.a, tt.b), 0.0001)
		})
	}
}

func TestRunningMean(t *testing.T) {
	mean := RunningMean(nil, []float64{1, 2}, 0)
	assert.Equal(t, []float64{1, 2}, mean)

	mean = RunningMean(mean, []float64{3, 4}, 1)
	assert.Equal(t, []float64{2, 3}, mean)

	// mismatched sample keeps the existing mean
	kept := RunningMean(mean, []float64{1}, 2)
	assert.Equal(t, mean, kept)

	// empty sample is a no-op
	kept = RunningMean(mean, nil, 2)
	assert.Equal(t, mean, kept)
}

func TestWeightedScore(t *testing.T) {
	scorer := NewScorer()

	score := scorer.WeightedScore(
		map[string]float64{"name": 0.75, "behavior": 0.8},
		map[string]float64{"name": 0.6, "behavior": 0.4},
	)
	assert.InDelta(t, 0.77, score, 0.0001)

	assert.Equal(t, 0.0, scorer.WeightedScore(nil, nil))
}
