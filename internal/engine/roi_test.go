package engine

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/pkg/dto"
)

func TestRoiGateDisabled(t *testing.T) {
	g := NewRoiGate(config.RoiConfig{Enabled: false, X: 0.5, Y: 0.5, W: 0.5, H: 0.5})
	assert.False(t, g.Enabled())
	assert.True(t, g.PixelRect(image.Rect(0, 0, 640, 480)).Empty())
}

func TestRoiGatePixelRect(t *testing.T) {
	g := NewRoiGate(config.RoiConfig{Enabled: true, X: 0.5, Y: 0, W: 0.5, H: 1})
	r := g.PixelRect(image.Rect(0, 0, 640, 480))
	require.Equal(t, image.Rect(320, 0, 640, 480), r)
}

func TestRoiGatePixelRectClipped(t *testing.T) {
	// Values slightly out of range clamp rather than fail.
	g := NewRoiGate(config.RoiConfig{Enabled: true, X: 0.75, Y: 0.75, W: 1, H: 1})
	r := g.PixelRect(image.Rect(0, 0, 100, 100))
	require.Equal(t, image.Rect(75, 75, 100, 100), r)
}

func TestRoiGateDegenerateFrame(t *testing.T) {
	g := NewRoiGate(config.RoiConfig{Enabled: true, X: 0, Y: 0, W: 1, H: 1})
	assert.True(t, g.PixelRect(image.Rectangle{}).Empty())
}

func TestContainsCenterStrictBoundary(t *testing.T) {
	r := image.Rect(320, 0, 640, 480)

	assert.True(t, ContainsCenter(r, 320.5, 240))
	assert.False(t, ContainsCenter(r, 320, 240), "center on the left edge is outside")
	assert.False(t, ContainsCenter(r, 640, 240), "center on the right edge is outside")
	assert.False(t, ContainsCenter(r, 400, 0), "center on the top edge is outside")
	assert.False(t, ContainsCenter(r, 400, 480))
	assert.True(t, ContainsCenter(r, 639.5, 479.5))
	assert.False(t, ContainsCenter(r, 200, 240))
}

func TestFilterObjects(t *testing.T) {
	r := image.Rect(320, 0, 640, 480)
	objs := []dto.LabeledObject{
		{ID: 0, X: 195, Y: 235, W: 10, H: 10}, // center (200, 240): outside
		{ID: 1, X: 395, Y: 235, W: 10, H: 10}, // center (400, 240): inside
		{ID: 2, X: 315, Y: 235, W: 10, H: 10}, // center (320, 240): on the edge
	}

	kept := FilterObjects(objs, r)
	require.Len(t, kept, 1)
	assert.Equal(t, 1, kept[0].ID)
}

func TestFilterObjectsZeroRectKeepsAll(t *testing.T) {
	objs := []dto.LabeledObject{{ID: 0}, {ID: 1}}
	kept := FilterObjects(objs, image.Rectangle{})
	assert.Len(t, kept, 2)
}
