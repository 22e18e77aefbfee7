package track

// Healthy-emission policies. Permissive emits any live track; strict demands
// a minimum fraction of max life.
const (
	HealthyPermissive = "permissive"
	HealthyStrict     = "strict"
)

// maxConsecutiveHits caps the hit streak and therefore the life growth rate.
const maxConsecutiveHits = 3

// TrackerConfig tunes per-track lifecycle and motion smoothing.
type TrackerConfig struct {
	// MaxLife is the upper bound of the life counter.
	MaxLife int `yaml:"max_life"`
	// FeatureMomentum is the EMA weight of the newest appearance feature.
	FeatureMomentum float32 `yaml:"feature_momentum"`
	// HealthyPolicy selects the emission gate: "permissive" (life > 0) or
	// "strict" (life >= HealthyPercent * MaxLife).
	HealthyPolicy string `yaml:"healthy_policy"`
	// HealthyPercent is the strict-policy life fraction.
	HealthyPercent float32 `yaml:"healthy_percent"`
	// KFPosNoise and KFSizeNoise override the motion filter's diagonal
	// process noise for position and size. Zero keeps the defaults.
	KFPosNoise  float64 `yaml:"kf_pos_noise"`
	KFSizeNoise float64 `yaml:"kf_size_noise"`
}

// Track is one persistent identity: a motion filter, the last box, the fused
// appearance feature, and the hit/life counters that decide its fate.
type Track struct {
	id      int
	box     BoundingBox
	feature Feature
	life    int
	hits    int
	cfg     TrackerConfig
	filter  *motionFilter
}

// newTrack builds a track from a confirmed pending detection. The detection
// feature is stored unit-norm; life starts at max.
func newTrack(id int, det Detection, cfg TrackerConfig) (*Track, error) {
	feat, err := det.Feature.Normalized()
	if err != nil {
		return nil, err
	}
	return &Track{
		id:      id,
		box:     det.Box,
		feature: feat,
		life:    cfg.MaxLife,
		cfg:     cfg,
		filter:  newMotionFilter(det.Box, cfg.KFPosNoise, cfg.KFSizeNoise),
	}, nil
}

// ID returns the stable identity; never reused within one manager.
func (t *Track) ID() int { return t.id }

// Box returns the current (last observed or predicted) box.
func (t *Track) Box() BoundingBox { return t.box }

// Feature returns the fused appearance feature; unit-norm after every hit.
func (t *Track) Feature() Feature { return t.feature }

// Life returns the current life counter.
func (t *Track) Life() int { return t.life }

// Predict advances the motion filter and overwrites the current box with the
// prediction. Life and hit counters are untouched.
func (t *Track) Predict() {
	pred := t.filter.Predict()
	pred.ClassID = t.box.ClassID
	pred.Score = t.box.Score
	t.box = pred
}

// UpdateHit folds a matched detection into the track: motion correction,
// appearance EMA fusion, and exponential life growth capped at max.
func (t *Track) UpdateHit(det Detection) error {
	t.filter.Correct(det.Box)
	t.box = det.Box

	alpha := t.cfg.FeatureMomentum
	blended, err := det.Feature.Scale(alpha).Add(t.feature.Scale(1 - alpha))
	if err != nil {
		return err
	}
	if fused, err := blended.Normalized(); err == nil {
		t.feature = fused
	}
	// A zero-norm blend keeps the previous (already unit-norm) feature.

	if t.hits < maxConsecutiveHits {
		t.hits++
	}
	t.life += 1 << t.hits
	if t.life > t.cfg.MaxLife {
		t.life = t.cfg.MaxLife
	}
	return nil
}

// UpdateMiss decays the track after an unmatched frame and reports whether
// it should be removed.
func (t *Track) UpdateMiss() bool {
	t.hits = 0
	if t.life > 0 {
		t.life--
	}
	return t.life == 0
}

// Healthy reports whether the track may appear in the emitted frame.
func (t *Track) Healthy() bool {
	if t.cfg.HealthyPolicy == HealthyStrict {
		return float32(t.life) >= t.cfg.HealthyPercent*float32(t.cfg.MaxLife)
	}
	return t.life > 0
}

func (t *Track) observation() Observation {
	return Observation{Box: t.box, Feature: t.feature}
}
