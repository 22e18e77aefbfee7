package track

import (
	"math"

	"github.com/your-org/mot/pkg/dto"
)

// Detection is one detector output augmented with its appearance feature and
// the number of ingest cycles it has survived in the pending buffer.
type Detection struct {
	Box     BoundingBox
	Feature Feature
	Age     int

	// refreshed records that a later frame re-sighted this entry; only
	// re-sighted entries may graduate, which keeps one-frame flickers
	// from ever becoming tracks.
	refreshed bool
}

const (
	// maxPendingAge bounds how many frames a tentative detection may wait
	// for confirmation before it is discarded.
	maxPendingAge = 2
	// confirmAge is the minimum number of completed ingest cycles before
	// an unclaimed pending detection becomes a track.
	confirmAge = 1
	// consumedAge marks a pending entry claimed by a live track this
	// frame; the next ingest filters it out.
	consumedAge = math.MaxInt32
)

// ManagerConfig aggregates the association and lifecycle settings.
type ManagerConfig struct {
	Matcher MatcherConfig `yaml:"matcher"`
	Tracker TrackerConfig `yaml:"tracker"`
}

// Manager owns every live track and the pending-detection buffer, and runs
// the per-frame predict / associate / update / birth / decay cycle.
type Manager struct {
	cfg     ManagerConfig
	matcher *Matcher
	tracks  []*Track
	pending []Detection
	nextID  int
}

// NewManager validates the matcher configuration and returns an empty
// manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	m, err := NewMatcher(cfg.Matcher)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, matcher: m}, nil
}

// PredictAll advances every track's motion filter one frame.
func (mgr *Manager) PredictAll() {
	for _, t := range mgr.tracks {
		t.Predict()
	}
}

// ActiveTracks returns the number of live tracks.
func (mgr *Manager) ActiveTracks() int { return len(mgr.tracks) }

// Tracks returns a borrowed view of the live tracks in insertion order. The
// slice is owned by the manager and valid until the next Update.
func (mgr *Manager) Tracks() []*Track { return mgr.tracks }

// Update runs one association cycle against the frame's detections:
// tentative detections are absorbed into the pending buffer, live tracks
// claim pending entries, unmatched tracks decay, and pending entries that
// survived a full cycle unclaimed graduate into new tracks.
//
// PredictAll must have been called for this frame beforehand.
func (mgr *Manager) Update(detections []Detection) error {
	if err := mgr.ingest(detections); err != nil {
		return err
	}

	// Associate live tracks against the pending buffer.
	trackObs := make([]Observation, len(mgr.tracks))
	for i, t := range mgr.tracks {
		trackObs[i] = t.observation()
	}
	pendObs := make([]Observation, len(mgr.pending))
	for i, p := range mgr.pending {
		pendObs[i] = Observation{Box: p.Box, Feature: p.Feature}
	}
	matches, err := mgr.matcher.Match(trackObs, pendObs)
	if err != nil {
		return err
	}

	matchedTracks := make([]bool, len(mgr.tracks))
	for _, m := range matches {
		p := mgr.pending[m.Right]
		if p.Age < maxPendingAge {
			// Fresh enough to correct the motion filter; stale
			// matches still claim the identity but are not applied.
			if err := mgr.tracks[m.Left].UpdateHit(p); err != nil {
				return err
			}
		}
		matchedTracks[m.Left] = true
		mgr.pending[m.Right].Age = consumedAge
	}

	// Decay unmatched tracks and drop the dead.
	alive := mgr.tracks[:0]
	for i, t := range mgr.tracks {
		if !matchedTracks[i] && t.UpdateMiss() {
			continue
		}
		alive = append(alive, t)
	}
	for i := len(alive); i < len(mgr.tracks); i++ {
		mgr.tracks[i] = nil
	}
	mgr.tracks = alive

	// Graduate pending entries that survived a full ingest cycle without
	// belonging to any live track. A detection that cannot be normalized
	// never becomes a track; aging removes it.
	for i := range mgr.pending {
		p := &mgr.pending[i]
		if !p.refreshed || p.Age < confirmAge || p.Age > maxPendingAge {
			continue
		}
		t, err := newTrack(mgr.nextID, *p, mgr.cfg.Tracker)
		if err != nil {
			continue
		}
		mgr.nextID++
		mgr.tracks = append(mgr.tracks, t)
		p.Age = consumedAge
	}

	// Age the survivors.
	for i := range mgr.pending {
		mgr.pending[i].Age++
	}
	return nil
}

// ingest folds the frame's detections into the pending buffer: matched
// entries take the newest box and feature but keep their age, expired
// entries drop out, and unmatched detections start fresh.
func (mgr *Manager) ingest(detections []Detection) error {
	// Expired and consumed entries are dropped before matching; a stale
	// entry must not swallow a fresh detection.
	next := make([]Detection, 0, len(mgr.pending)+len(detections))
	for _, p := range mgr.pending {
		if p.Age <= maxPendingAge {
			next = append(next, p)
		}
	}

	pendObs := make([]Observation, len(next))
	for i, p := range next {
		pendObs[i] = Observation{Box: p.Box, Feature: p.Feature}
	}
	detObs := make([]Observation, len(detections))
	for i, d := range detections {
		detObs[i] = Observation{Box: d.Box, Feature: d.Feature}
	}
	matches, err := mgr.matcher.Match(pendObs, detObs)
	if err != nil {
		return err
	}

	claimed := make([]bool, len(detections))
	for _, m := range matches {
		claimed[m.Right] = true
		// Refresh the payload without resetting the age, so a
		// jittering detection cannot delay confirmation forever.
		next[m.Left].Box = detections[m.Right].Box
		next[m.Left].Feature = detections[m.Right].Feature
		next[m.Left].refreshed = true
	}

	for i, d := range detections {
		if claimed[i] {
			continue
		}
		d.Age = 0
		d.refreshed = false
		next = append(next, d)
	}
	mgr.pending = next
	return nil
}

// FillLabeledFrame exports every healthy track into out, preserving the
// manager's insertion order.
func (mgr *Manager) FillLabeledFrame(frameIndex int, out *dto.LabeledFrame) {
	out.FrameIndex = frameIndex
	out.Objects = out.Objects[:0]
	for _, t := range mgr.tracks {
		if !t.Healthy() {
			continue
		}
		b := t.box
		out.Objects = append(out.Objects, dto.LabeledObject{
			ID:      t.id,
			X:       int(math.Round(float64(b.X))),
			Y:       int(math.Round(float64(b.Y))),
			W:       int(math.Round(float64(b.W))),
			H:       int(math.Round(float64(b.H))),
			ClassID: b.ClassID,
			Score:   b.Score,
		})
	}
}
