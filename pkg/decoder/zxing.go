package decoder

import (
	"context"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"
	qrmulti "github.com/makiuchi-d/gozxing/multi/qrcode"
)

// QRDetector detects QR codes with gozxing's multi-code reader. Other symbol
// families in frame are ignored.
type QRDetector struct {
	reader multi.MultipleBarcodeReader
}

func NewQRDetector() *QRDetector {
	return &QRDetector{reader: qrmulti.NewQRCodeMultiReader()}
}

func (d *QRDetector) Detect(_ context.Context, img image.Image) ([]Detection, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}

	results, err := d.reader.DecodeMultiple(bmp, nil)
	if err != nil {
		// No code in frame is a normal outcome; the caller asks for a retake.
		if _, notFound := err.(gozxing.NotFoundException); notFound {
			return nil, nil
		}

		return nil, err
	}

	detections := make([]Detection, 0, len(results))

	for _, result := range results {
		points := result.GetResultPoints()
		if len(points) == 0 {
			continue
		}

		minX, minY := math.MaxFloat64, math.MaxFloat64
		maxX, maxY := -math.MaxFloat64, -math.MaxFloat64

		for _, p := range points {
			minX = math.Min(minX, p.GetX())
			maxX = math.Max(maxX, p.GetX())
			minY = math.Min(minY, p.GetY())
			maxY = math.Max(maxY, p.GetY())
		}

		detections = append(detections, Detection{
			Text: result.GetText(),
			Area: int((maxX - minX) * (maxY - minY)),
			Left: int(minX),
		})
	}

	return detections, nil
}
