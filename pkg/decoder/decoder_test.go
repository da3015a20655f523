package decoder

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcline/qcline/pkg/log"
	"github.com/qcline/qcline/pkg/models"
)

type fakeDetector struct {
	detections []Detection
	err        error
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f.detections, f.err
}

func testImage(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func decodeWith(t *testing.T, detections []Detection) []models.CapturedCode {
	t.Helper()

	dec := New(&fakeDetector{detections: detections}, log.WithModule("test"))

	codes, err := dec.Decode(context.Background(), testImage(t))
	require.NoError(t, err)

	return codes
}

func TestDecoder_Decode_KeepsTwoLargestLeftToRight(t *testing.T) {
	t.Parallel()

	codes := decodeWith(t, []Detection{
		{Text: "SMALL", Area: 10, Left: 5},
		{Text: "BIGGEST", Area: 50, Left: 80},
		{Text: "MIDDLE", Area: 30, Left: 40},
	})

	// The smallest candidate drops out; the survivors come back in
	// left-to-right order regardless of prominence.
	require.Len(t, codes, 2)
	assert.Equal(t, "MIDDLE", codes[0].Text)
	assert.Equal(t, "BIGGEST", codes[1].Text)
}

func TestDecoder_Decode_DedupesByText(t *testing.T) {
	t.Parallel()

	codes := decodeWith(t, []Detection{
		{Text: "ITEM-1", Area: 40, Left: 10},
		{Text: "ITEM-1", Area: 38, Left: 12},
		{Text: "BOX-9", Area: 35, Left: 90},
	})

	require.Len(t, codes, 2)
	assert.Equal(t, "ITEM-1", codes[0].Text)
	assert.Equal(t, "BOX-9", codes[1].Text)
}

func TestDecoder_Decode_NoDetections(t *testing.T) {
	t.Parallel()

	codes := decodeWith(t, nil)
	assert.Empty(t, codes)
}

func TestDecoder_Decode_InvalidImage(t *testing.T) {
	t.Parallel()

	dec := New(&fakeDetector{}, log.WithModule("test"))

	_, err := dec.Decode(context.Background(), []byte("not an image"))
	assert.Error(t, err)
}

func TestPair(t *testing.T) {
	t.Parallel()

	_, ok := Pair(nil)
	assert.False(t, ok)

	// A lone code is the item itself, not its container.
	pair, ok := Pair([]models.CapturedCode{{Text: "ITEM-1"}})
	require.True(t, ok)
	assert.Empty(t, pair.ContainerCode)
	assert.Equal(t, "ITEM-1", pair.ItemCode)

	pair, ok = Pair([]models.CapturedCode{{Text: "BOX-9"}, {Text: "ITEM-1"}})
	require.True(t, ok)
	assert.Equal(t, "BOX-9", pair.ContainerCode)
	assert.Equal(t, "ITEM-1", pair.ItemCode)
}
