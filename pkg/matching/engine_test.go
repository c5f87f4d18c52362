package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
)

func testEngine() *Engine {
	return &Engine{config: DefaultConfig()}
}

func TestCombinedScore(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name        string
		nameSim     float64
		behaviorSim float64
		expected    float64
	}{
		{"george roberts rayleigh", 0.75, 0.8, 0.77},
		{"weak name only", 0.55, 0.0, 0.33},
		{"review band", 0.6, 0.55, 0.58},
		{"perfect weak signals stay capped", 1.0, 1.0, 0.94},
		{"zeroes", 0.0, 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, e.combinedScore(tt.nameSim, tt.behaviorSim), 0.0001)
		})
	}
}

func TestCombinedScoreNeverReachesTierOne(t *testing.T) {
	e := testEngine()
	for name := 0.0; name <= 1.0; name += 0.1 {
		for behavior := 0.0; behavior <= 1.0; behavior += 0.1 {
			score := e.combinedScore(name, behavior)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, e.config.WeakScoreCap)
		}
	}
}

func TestTierClassification(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name     string
		score    float64
		expected models.Decision
	}{
		{"tier two floor auto links", 0.70, models.DecisionMatched},
		{"tier two mid", 0.77, models.DecisionMatched},
		{"tier two top", 0.94, models.DecisionMatched},
		{"tier three floor flags", 0.50, models.DecisionFlaggedForReview},
		{"tier three top flags", 0.69, models.DecisionFlaggedForReview},
		{"below tier three creates", 0.49, models.DecisionCreatedNew},
		{"zero creates", 0.0, models.DecisionCreatedNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.Decision
			switch {
			case tt.score >= e.config.Tier2Floor:
				got = models.DecisionMatched
			case tt.score >= e.config.Tier3Floor:
				got = models.DecisionFlaggedForReview
			default:
				got = models.DecisionCreatedNew
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPickExactWinnerPrefersHigherSignalCount(t *testing.T) {
	e := testEngine()

	older := &models.Actor{ActorID: "actor-a", SignalCount: 12, FirstSeen: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &models.Actor{ActorID: "actor-b", SignalCount: 3, FirstSeen: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}

	evidence := &models.DecisionEvidence{}
	winner := e.pickExactWinner([]exactMatch{
		{actor: newer, idType: models.IdentifierTypePhone, value: "+447473880264", method: models.LinkMethodExactPhone, confidence: 1.0},
		{actor: older, idType: models.IdentifierTypeEmail, value: "george@example.com", method: models.LinkMethodExactEmail, confidence: 1.0},
	}, evidence)

	assert.Equal(t, "actor-a", winner.actor.ActorID)
	require.Len(t, evidence.Conflicts, 1)
	assert.Equal(t, "actor-a", evidence.Conflicts[0].WinnerActorID)
	assert.Equal(t, "actor-b", evidence.Conflicts[0].LoserActorID)
	assert.Equal(t, 12, evidence.Conflicts[0].WinnerSignals)
	assert.Equal(t, 3, evidence.Conflicts[0].LoserSignals)
}

func TestPickExactWinnerSignalCountTieFallsBackToFirstSeen(t *testing.T) {
	e := testEngine()

	earlier := &models.Actor{ActorID: "actor-z", SignalCount: 5, FirstSeen: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	later := &models.Actor{ActorID: "actor-a", SignalCount: 5, FirstSeen: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}

	evidence := &models.DecisionEvidence{}
	winner := e.pickExactWinner([]exactMatch{
		{actor: later, idType: models.IdentifierTypePhone, value: "+447473880264", method: models.LinkMethodExactPhone, confidence: 1.0},
		{actor: earlier, idType: models.IdentifierTypeEmail, value: "g@example.com", method: models.LinkMethodExactEmail, confidence: 1.0},
	}, evidence)

	assert.Equal(t, "actor-z", winner.actor.ActorID)
}

func TestPickExactWinnerSameActorKeepsStrongerMethod(t *testing.T) {
	e := testEngine()

	a := &models.Actor{ActorID: "actor-a", SignalCount: 5}

	evidence := &models.DecisionEvidence{}
	winner := e.pickExactWinner([]exactMatch{
		{actor: a, idType: models.IdentifierTypeHandle, value: "georger", method: models.LinkMethodExactHandle, confidence: 0.9},
		{actor: a, idType: models.IdentifierTypePhone, value: "+447473880264", method: models.LinkMethodExactPhone, confidence: 1.0},
	}, evidence)

	assert.Equal(t, models.LinkMethodExactPhone, winner.method)
	assert.InDelta(t, 1.0, winner.confidence, 0.0001)
	assert.Empty(t, evidence.Conflicts)
}

func TestSortCandidatesTieBreak(t *testing.T) {
	e := testEngine()

	actors := map[string]*models.Actor{
		"actor-b": {ActorID: "actor-b", FirstSeen: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		"actor-a": {ActorID: "actor-a", FirstSeen: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}

	// scores within the 0.02 window; earliest first_seen wins despite the
	// slightly lower score
	candidates := []models.CandidateScore{
		{ActorID: "actor-a", Score: 0.76},
		{ActorID: "actor-b", Score: 0.75},
	}
	e.sortCandidates(candidates, actors)
	assert.Equal(t, "actor-b", candidates[0].ActorID)

	// outside the window the score wins
	candidates = []models.CandidateScore{
		{ActorID: "actor-a", Score: 0.80},
		{ActorID: "actor-b", Score: 0.75},
	}
	e.sortCandidates(candidates, actors)
	assert.Equal(t, "actor-a", candidates[0].ActorID)
}

func TestSortCandidatesEqualFirstSeenUsesActorID(t *testing.T) {
	e := testEngine()

	seen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	actors := map[string]*models.Actor{
		"actor-b": {ActorID: "actor-b", FirstSeen: seen},
		"actor-a": {ActorID: "actor-a", FirstSeen: seen},
	}

	candidates := []models.CandidateScore{
		{ActorID: "actor-b", Score: 0.75},
		{ActorID: "actor-a", Score: 0.75},
	}
	e.sortCandidates(candidates, actors)
	assert.Equal(t, "actor-a", candidates[0].ActorID)
}

func TestNormalizeAllIsolatesMalformedIdentifiers(t *testing.T) {
	e := testEngine()

	sig := &models.Signal{
		SignalID: "sig-1",
		TenantID: "tenant-1",
		RawIdentifiers: models.IdentifierMap{
			models.IdentifierTypePhone: "12",
			models.IdentifierTypeEmail: "George@Example.com",
			models.IdentifierTypeName:  "George R.",
		},
	}

	normalized, evidence := e.normalizeAll(sig)

	require.Len(t, evidence.NormalizationErrors, 1)
	assert.Contains(t, evidence.NormalizationErrors[0], "phone")

	byType := map[models.IdentifierType]string{}
	for _, nid := range normalized {
		byType[nid.Type] = nid.Value
	}
	assert.Equal(t, "george@example.com", byType[models.IdentifierTypeEmail])
	assert.Equal(t, "george r", byType[models.IdentifierTypeName])
	assert.NotContains(t, byType, models.IdentifierTypePhone)
}

func TestNormalizeAllConfluentPhones(t *testing.T) {
	e := testEngine()

	a, _ := e.normalizeAll(&models.Signal{RawIdentifiers: models.IdentifierMap{models.IdentifierTypePhone: "+44 7473 880264"}})
	b, _ := e.normalizeAll(&models.Signal{RawIdentifiers: models.IdentifierMap{models.IdentifierTypePhone: "07473880264"}})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Value, b[0].Value)
}

func TestTopN(t *testing.T) {
	candidates := []models.CandidateScore{{ActorID: "a"}, {ActorID: "b"}, {ActorID: "c"}, {ActorID: "d"}}
	assert.Len(t, topN(candidates, 3), 3)
	assert.Len(t, topN(candidates, 10), 4)
}

func TestIdentifierConfidence(t *testing.T) {
	assert.Equal(t, 1.0, identifierConfidence(models.IdentifierTypePhone))
	assert.Equal(t, 1.0, identifierConfidence(models.IdentifierTypeEmail))
	assert.Equal(t, 0.9, identifierConfidence(models.IdentifierTypeHandle))
	assert.Equal(t, 0.5, identifierConfidence(models.IdentifierTypeName))
}
