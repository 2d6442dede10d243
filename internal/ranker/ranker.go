// Package ranker pairs model scores with labels and picks the best ones.
package ranker

import (
	"sort"

	"github.com/Brownie44l1/image-classifier/internal/labels"
	"github.com/Brownie44l1/image-classifier/internal/model"
)

// TopResult returns the label with the strictly greatest score. On an exact
// tie the lowest index wins.
func TopResult(scores []float32, set labels.LabelSet) (model.Classification, error) {
	if err := checkAligned(scores, set); err != nil {
		return model.Classification{}, err
	}

	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores[1:] {
		if val > maxVal {
			maxVal = val
			maxIdx = i + 1
		}
	}

	return model.Classification{Label: set[maxIdx], Confidence: maxVal}, nil
}

// TopK returns up to k classifications ordered by descending score, ties kept
// in index order.
func TopK(scores []float32, set labels.LabelSet, k int) ([]model.Classification, error) {
	if err := checkAligned(scores, set); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]model.Classification, len(scores))
	for i, score := range scores {
		results[i] = model.Classification{Label: set[i], Confidence: score}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})

	return results[:min(k, len(results))], nil
}

func checkAligned(scores []float32, set labels.LabelSet) error {
	if len(scores) != len(set) || len(scores) == 0 {
		return &model.ShapeMismatchError{What: "scores vs labels", Want: len(set), Got: len(scores)}
	}
	return nil
}
