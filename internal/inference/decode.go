package inference

import (
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/jetstreamer/internal/types"
	"gocv.io/x/gocv"
)

// topClass returns the best scoring class. Logits are softmaxed first so the
// confidence is a probability for every layout.
func topClass(scores []float32, layout string) (int, float32, error) {
	if len(scores) == 0 {
		return 0, 0, fmt.Errorf("empty classification output")
	}
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	if layout != LayoutLogits {
		return best, scores[best], nil
	}

	top := float64(scores[best])
	var sum float64
	for _, s := range scores {
		sum += math.Exp(float64(s) - top)
	}
	return best, float32(1 / sum), nil
}

// decoder turns raw network output into detections in image pixels.
type decoder struct {
	net       Network
	labels    []string
	threshold float32
}

// decode dispatches on the network layout. shape is the output tensor shape.
func (d *decoder) decode(data []float32, shape []int, imgW, imgH int) ([]types.Detection, error) {
	switch d.net.Layout {
	case LayoutSSD:
		return d.decodeSSD(data, imgW, imgH), nil
	case LayoutYOLOv8:
		if len(shape) != 3 {
			return nil, fmt.Errorf("unexpected yolov8 output shape %v", shape)
		}
		return d.decodeYOLOv8(data, shape[1], shape[2], imgW, imgH), nil
	default:
		return nil, fmt.Errorf("layout %q is not a detection layout", d.net.Layout)
	}
}

// decodeSSD reads rows of [image_id, label, confidence, x1, y1, x2, y2] with
// normalized coordinates. The network has already suppressed overlaps.
func (d *decoder) decodeSSD(data []float32, imgW, imgH int) []types.Detection {
	w, h := float32(imgW), float32(imgH)
	out := []types.Detection{}
	for i := 0; i+7 <= len(data); i += 7 {
		conf := data[i+2]
		if conf < d.threshold {
			continue
		}
		id := int(data[i+1])
		det := types.Detection{
			ClassID:    id,
			Label:      label(d.labels, id),
			Confidence: conf,
			Left:       clamp(data[i+3]*w, w),
			Top:        clamp(data[i+4]*h, h),
			Right:      clamp(data[i+5]*w, w),
			Bottom:     clamp(data[i+6]*h, h),
		}
		// Boxes entirely outside the image clamp to nothing.
		if det.Area() <= 0 {
			continue
		}
		out = append(out, det)
	}
	return out
}

// decodeYOLOv8 reads a [channels, boxes] tensor where each column is
// cx, cy, w, h followed by one score per class, then applies NMS.
func (d *decoder) decodeYOLOv8(data []float32, channels, boxes, imgW, imgH int) []types.Detection {
	var (
		rects       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	sx := float32(imgW) / float32(d.net.InputWidth)
	sy := float32(imgH) / float32(d.net.InputHeight)

	for i := 0; i < boxes; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < channels; c++ {
			if score := data[c*boxes+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.threshold {
			continue
		}

		cx, cy := data[i], data[boxes+i]
		w, h := data[2*boxes+i], data[3*boxes+i]
		rects = append(rects, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	out := []types.Detection{}
	if len(rects) == 0 {
		return out
	}
	for _, idx := range gocv.NMSBoxes(rects, confidences, d.threshold, float32(d.net.NMS)) {
		r := rects[idx]
		det := types.Detection{
			ClassID:    classIDs[idx],
			Label:      label(d.labels, classIDs[idx]),
			Confidence: confidences[idx],
			Left:       clamp(float32(r.Min.X), float32(imgW)),
			Top:        clamp(float32(r.Min.Y), float32(imgH)),
			Right:      clamp(float32(r.Max.X), float32(imgW)),
			Bottom:     clamp(float32(r.Max.Y), float32(imgH)),
		}
		if det.Area() <= 0 {
			continue
		}
		out = append(out, det)
	}
	return out
}

func clamp(v, limit float32) float32 {
	return min(max(v, 0), limit)
}
