package track

import (
	"errors"
	"math"
	"sort"
)

// ErrZeroWeights is returned at construction when both matcher weights are
// (near) zero, which would make every pair score undefined.
var ErrZeroWeights = errors.New("track: matcher weights sum to zero")

// MatcherConfig tunes the detection-to-track association.
type MatcherConfig struct {
	// IoUWeight and FeatureWeight are the exponents of the geometric
	// weighted mean, normalized so they sum to one.
	IoUWeight     float64 `yaml:"iou_weight"`
	FeatureWeight float64 `yaml:"feature_weight"`
	// Threshold is the minimum combined score for a pair to become a
	// match candidate.
	Threshold float64 `yaml:"threshold"`
}

// Observation is what the matcher sees of a track, a pending detection, or a
// fresh detection: a box and an appearance feature.
type Observation struct {
	Box     BoundingBox
	Feature Feature
}

// MatchPair associates index Left in the left list with index Right in the
// right list.
type MatchPair struct {
	Left  int
	Right int
}

// Matcher performs greedy one-to-one association between two observation
// lists. The pair score is the geometric weighted mean of box IoU and the
// cosine similarity mapped to [0, 1]; a near-zero value of either cue vetoes
// the pair regardless of the other.
type Matcher struct {
	cfg   MatcherConfig
	wIoU  float64
	wFeat float64
}

// NewMatcher validates the weights and returns a ready matcher.
func NewMatcher(cfg MatcherConfig) (*Matcher, error) {
	sum := cfg.IoUWeight + cfg.FeatureWeight
	if sum <= 1e-6 {
		return nil, ErrZeroWeights
	}
	return &Matcher{
		cfg:   cfg,
		wIoU:  cfg.IoUWeight / sum,
		wFeat: cfg.FeatureWeight / sum,
	}, nil
}

type candidate struct {
	score float64
	left  int
	right int
}

// Match scores every (left, right) pair, keeps those at or above the
// threshold, and claims them one-to-one in descending score order. Ties keep
// encounter order. The only possible error is a feature dimension mismatch,
// which aborts the whole match.
func (m *Matcher) Match(left, right []Observation) ([]MatchPair, error) {
	if len(left) == 0 || len(right) == 0 {
		return nil, nil
	}

	candidates := make([]candidate, 0, len(left)*len(right))
	for i := range left {
		for j := range right {
			s, err := m.score(left[i], right[j])
			if err != nil {
				if errors.Is(err, ErrZeroVector) {
					// A degenerate feature disqualifies the
					// pair, not the frame.
					continue
				}
				return nil, err
			}
			if s >= m.cfg.Threshold {
				candidates = append(candidates, candidate{score: s, left: i, right: j})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	usedLeft := make([]bool, len(left))
	usedRight := make([]bool, len(right))
	var matches []MatchPair
	for _, c := range candidates {
		if usedLeft[c.left] || usedRight[c.right] {
			continue
		}
		usedLeft[c.left] = true
		usedRight[c.right] = true
		matches = append(matches, MatchPair{Left: c.left, Right: c.right})
	}
	return matches, nil
}

func (m *Matcher) score(a, b Observation) (float64, error) {
	iou := float64(IoU(a.Box, b.Box))

	cos, err := Cosine(a.Feature, b.Feature)
	if err != nil {
		return 0, err
	}
	// Map cosine from [-1, 1] to [0, 1].
	sim := 0.5 * (float64(cos) + 1)

	if iou <= 0 && m.wIoU > 0 {
		return 0, nil
	}
	if sim <= 0 && m.wFeat > 0 {
		return 0, nil
	}
	return math.Pow(iou, m.wIoU) * math.Pow(sim, m.wFeat), nil
}
