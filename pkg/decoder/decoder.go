// Package decoder turns a capture photograph into an ordered
// (container code, item code) pair.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"

	_ "image/jpeg"
	_ "image/png"

	"github.com/qcline/qcline/pkg/models"
)

// Detection is one scannable code found by a Detector, with its decoded text
// and bounding-box geometry in image coordinates.
type Detection struct {
	Text string
	Area int
	Left int
}

// Detector finds scannable codes of the expected symbol family in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Decoder applies the pairing heuristic on top of a Detector: dedupe by text,
// keep the two largest codes, order them left to right.
type Decoder struct {
	detector Detector
	logger   *slog.Logger
}

func New(detector Detector, logger *slog.Logger) *Decoder {
	return &Decoder{
		detector: detector,
		logger:   logger.With("module", "decoder"),
	}
}

// Decode returns zero, one or two candidate codes ordered by ascending
// horizontal position. An empty result means the caller must request a
// retake.
func (d *Decoder) Decode(ctx context.Context, imageBytes []byte) ([]models.CapturedCode, error) {
	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	detections, err := d.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("code detection failed: %w", err)
	}

	d.logger.DebugContext(ctx, "Detected codes", "format", format, "count", len(detections))

	candidates := dedupe(detections)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Two-phase sort: prefer the two most prominent codes, then restore the
	// left-to-right convention that assigns their roles. Incidental smaller
	// codes elsewhere in frame drop out in the first phase.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Area > candidates[j].Area
	})

	if len(candidates) > 2 {
		candidates = candidates[:2]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Left < candidates[j].Left
	})

	codes := make([]models.CapturedCode, 0, len(candidates))
	for _, c := range candidates {
		codes = append(codes, models.CapturedCode{Text: c.Text, Area: c.Area, Left: c.Left})
	}

	return codes, nil
}

// Pair assigns roles to decoded candidates: leftmost is the container code,
// rightmost the item code. A single candidate becomes the item code with the
// container role left empty.
func Pair(codes []models.CapturedCode) (models.CapturedPair, bool) {
	switch len(codes) {
	case 0:
		return models.CapturedPair{}, false
	case 1:
		return models.CapturedPair{ItemCode: codes[0].Text}, true
	default:
		return models.CapturedPair{
			ContainerCode: codes[0].Text,
			ItemCode:      codes[len(codes)-1].Text,
		}, true
	}
}

func dedupe(detections []Detection) []Detection {
	seen := make(map[string]struct{}, len(detections))
	unique := make([]Detection, 0, len(detections))

	for _, d := range detections {
		if _, ok := seen[d.Text]; ok {
			continue
		}

		seen[d.Text] = struct{}{}
		unique = append(unique, d)
	}

	return unique
}
