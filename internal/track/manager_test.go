package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mot/pkg/dto"
)

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		Matcher: MatcherConfig{IoUWeight: 0.5, FeatureWeight: 0.5, Threshold: 0.1},
		Tracker: TrackerConfig{
			MaxLife:         10,
			FeatureMomentum: 0.7,
			HealthyPolicy:   HealthyPermissive,
			HealthyPercent:  1.0,
		},
	}
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

// step runs one full frame cycle.
func step(t *testing.T, m *Manager, dets []Detection) {
	t.Helper()
	m.PredictAll()
	require.NoError(t, m.Update(dets))
}

func TestManagerRejectsZeroWeights(t *testing.T) {
	_, err := NewManager(ManagerConfig{Tracker: testManagerConfig().Tracker})
	require.ErrorIs(t, err, ErrZeroWeights)
}

func TestManagerTwoFrameConfirmation(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	d := det(box(10, 10, 40, 40), Feature{1, 0, 0, 0})

	step(t, m, []Detection{d})
	assert.Equal(t, 0, m.ActiveTracks(), "a single sighting stays pending")

	step(t, m, []Detection{d})
	require.Equal(t, 1, m.ActiveTracks(), "second consecutive sighting confirms")
	assert.Equal(t, 0, m.Tracks()[0].ID())
	assert.Equal(t, 10, m.Tracks()[0].Life())
}

func TestManagerSingletonFlickerSuppressed(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	d := det(box(10, 10, 40, 40), Feature{1, 0, 0, 0})

	step(t, m, []Detection{d})
	for i := 0; i < 5; i++ {
		step(t, m, nil)
	}
	assert.Equal(t, 0, m.ActiveTracks())
	assert.Empty(t, m.pending, "singleton ages out of the pending buffer")
}

func TestManagerPendingAgeNotResetByJitter(t *testing.T) {
	m := newTestManager(t, testManagerConfig())

	// The same physical object jitters around; the pending entry keeps
	// aging and still confirms on the second frame.
	step(t, m, []Detection{det(box(10, 10, 40, 40), Feature{1, 0})})
	step(t, m, []Detection{det(box(12, 11, 40, 40), Feature{1, 0.05})})
	assert.Equal(t, 1, m.ActiveTracks())
}

func TestManagerIdentityAcrossMotion(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	f := Feature{1, 0, 0, 0}

	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	require.Equal(t, 1, m.ActiveTracks())

	// Small motion with a slightly rotated feature keeps the identity.
	step(t, m, []Detection{det(box(12, 12, 40, 40), Feature{0.98, 0.2, 0, 0})})
	require.Equal(t, 1, m.ActiveTracks())
	tr := m.Tracks()[0]
	assert.Equal(t, 0, tr.ID())
	assert.Equal(t, float32(12), tr.Box().X)
}

func TestManagerIdentityFollowsFeature(t *testing.T) {
	cfg := testManagerConfig()
	cfg.Matcher = MatcherConfig{IoUWeight: 0.2, FeatureWeight: 0.8, Threshold: 0.05}
	m := newTestManager(t, cfg)

	f1 := Feature{1, 0}
	f2 := Feature{0, 1}
	a := det(box(0, 0, 10, 10), f1)
	b := det(box(8, 0, 10, 10), f2)

	step(t, m, []Detection{a, b})
	step(t, m, []Detection{a, b})
	require.Equal(t, 2, m.ActiveTracks())
	require.Equal(t, 0, m.Tracks()[0].ID())
	require.Equal(t, float32(0), m.Tracks()[0].Box().X)

	// Boxes swap, features stay: identities must follow the features.
	swapped := []Detection{
		det(box(8, 0, 10, 10), f1),
		det(box(0, 0, 10, 10), f2),
	}
	step(t, m, swapped)

	require.Equal(t, 2, m.ActiveTracks())
	assert.Equal(t, float32(8), m.Tracks()[0].Box().X, "track 0 follows feature f1")
	assert.Equal(t, float32(0), m.Tracks()[1].Box().X, "track 1 follows feature f2")
}

func TestManagerOcclusionSurvival(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	f := Feature{1, 0, 0, 0}

	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	require.Equal(t, 1, m.ActiveTracks())

	for i := 0; i < 5; i++ {
		step(t, m, nil)
	}
	require.Equal(t, 1, m.ActiveTracks(), "track survives the occlusion window")

	step(t, m, []Detection{det(box(12, 12, 40, 40), f)})
	require.Equal(t, 1, m.ActiveTracks())
	assert.Equal(t, 0, m.Tracks()[0].ID(), "identity retained after reappearance")
}

func TestManagerLifeExhaustion(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	f := Feature{1, 0, 0, 0}

	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	require.Equal(t, 1, m.ActiveTracks())

	// max_life misses remove the track.
	for i := 0; i < 12; i++ {
		step(t, m, nil)
	}
	require.Equal(t, 0, m.ActiveTracks())

	// The object returns; the old identity is gone and a fresh one is
	// assigned after two confirmation frames.
	step(t, m, []Detection{det(box(12, 12, 40, 40), f)})
	assert.Equal(t, 0, m.ActiveTracks())
	step(t, m, []Detection{det(box(12, 12, 40, 40), f)})
	require.Equal(t, 1, m.ActiveTracks())
	assert.Equal(t, 1, m.Tracks()[0].ID(), "ids are never reused")
}

func TestManagerStaleMatchClaimsWithoutApplying(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	f := Feature{1, 0}

	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	step(t, m, []Detection{det(box(10, 10, 40, 40), f)})
	require.Equal(t, 1, m.ActiveTracks())
	life := m.Tracks()[0].Life()
	boxBefore := m.Tracks()[0].Box()

	// Inject a stale pending entry matching the track.
	m.pending = []Detection{{Box: box(10, 10, 40, 40), Feature: f, Age: maxPendingAge}}
	m.PredictAll()
	require.NoError(t, m.Update(nil))

	tr := m.Tracks()[0]
	assert.Equal(t, life, tr.Life(), "claimed track neither decays nor grows")
	assert.InDelta(t, float64(boxBefore.X), float64(tr.Box().X), 0.5)
	require.Len(t, m.pending, 1)
	assert.Greater(t, m.pending[0].Age, maxPendingAge, "claimed entry is marked consumed")

	// The next ingest cycle clears the consumed entry.
	m.PredictAll()
	require.NoError(t, m.Update(nil))
	assert.Empty(t, m.pending)
}

func TestManagerFillLabeledFrame(t *testing.T) {
	m := newTestManager(t, testManagerConfig())

	var out dto.LabeledFrame
	out.Objects = append(out.Objects, dto.LabeledObject{ID: 99})
	m.FillLabeledFrame(7, &out)
	assert.Equal(t, 7, out.FrameIndex)
	assert.Empty(t, out.Objects, "empty manager clears the output")

	b := box(10, 10, 40, 40)
	b.ClassID = 3
	b.Score = 0.9
	step(t, m, []Detection{det(b, Feature{1, 0})})
	step(t, m, []Detection{det(b, Feature{1, 0})})
	m.FillLabeledFrame(8, &out)
	require.Len(t, out.Objects, 1)
	obj := out.Objects[0]
	assert.Equal(t, 0, obj.ID)
	assert.Equal(t, 10, obj.X)
	assert.Equal(t, 10, obj.Y)
	assert.Equal(t, 40, obj.W)
	assert.Equal(t, 40, obj.H)
	assert.Equal(t, 3, obj.ClassID)
	assert.Equal(t, float32(0.9), obj.Score)
}

func TestManagerUnitNormInvariant(t *testing.T) {
	m := newTestManager(t, testManagerConfig())

	dets := []Detection{
		det(box(0, 0, 10, 10), Feature{3, 4, 0}),
		det(box(50, 50, 10, 10), Feature{0, 2, 0}),
	}
	for i := 0; i < 6; i++ {
		step(t, m, dets)
		for _, tr := range m.Tracks() {
			assert.InDelta(t, 1.0, float64(tr.Feature().L2Norm()), 1e-4)
		}
	}
}

func TestManagerDimensionMismatchSurfaces(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	step(t, m, []Detection{det(box(0, 0, 10, 10), Feature{1, 0})})

	m.PredictAll()
	err := m.Update([]Detection{det(box(0, 0, 10, 10), Feature{1, 0, 0})})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestManagerPendingExpiryInvariant(t *testing.T) {
	m := newTestManager(t, testManagerConfig())
	step(t, m, []Detection{det(box(0, 0, 10, 10), Feature{1, 0})})

	for i := 0; i < 4; i++ {
		step(t, m, nil)
		for _, p := range m.pending {
			assert.LessOrEqual(t, p.Age, maxPendingAge+1)
		}
	}
}
