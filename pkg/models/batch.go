package models

// BatchSummary counts outcomes across one batch of processed signals.
// Per-signal failures are isolated and tallied here, never abort the batch.
type BatchSummary struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Created   int `json:"created"`
	Flagged   int `json:"flagged"`
	Replayed  int `json:"replayed"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
	Requeued  int `json:"requeued"`
}

// Add folds one resolution outcome into the summary
func (b *BatchSummary) Add(result *MatchResult, err error) {
	b.Processed++
	if err != nil {
		if err == ErrStoreUnavailable {
			b.Requeued++
		} else {
			b.Failed++
		}
		return
	}
	if result.Replayed {
		b.Replayed++
		return
	}
	if result.Conflicted {
		b.Conflicts++
	}
	switch result.Decision {
	case DecisionMatched:
		b.Matched++
	case DecisionCreatedNew:
		b.Created++
	case DecisionFlaggedForReview:
		b.Flagged++
	}
}
