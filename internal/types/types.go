package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved metadata keys assigned by the source.
const (
	KeyFnum      = "fnum"
	KeyTimestamp = "timestamp"
)

// ErrReservedKey is returned when a stage tries to overwrite a source-assigned key.
var ErrReservedKey = errors.New("types: reserved metadata key")

// Image is an opaque handle into pixel memory owned by a camera session.
// Handle is only interpreted by capabilities that understand its format
// (*gocv.Mat, *image.RGBA, image.Image). It stays valid until the next capture.
type Image struct {
	Handle any
	Width  int
	Height int
}

// Frame is one metadata + image unit flowing through the pipeline.
type Frame struct {
	Meta  *Metadata
	Image Image
}

// NewFrame builds a frame carrying the two reserved keys.
func NewFrame(fnum uint64, timestamp float64, img Image) *Frame {
	m := NewMetadata()
	m.Set(KeyFnum, fnum)
	m.Set(KeyTimestamp, timestamp)
	return &Frame{Meta: m, Image: img}
}

// Fnum returns the frame number assigned by the source.
func (f *Frame) Fnum() uint64 {
	v, _ := f.Meta.Get(KeyFnum)
	n, _ := v.(uint64)
	return n
}

// Timestamp returns the capture time in seconds since the epoch.
func (f *Frame) Timestamp() float64 {
	v, _ := f.Meta.Get(KeyTimestamp)
	ts, _ := v.(float64)
	return ts
}

// Annotate adds a key to the frame metadata in place.
// fnum and timestamp belong to the source and cannot be rewritten.
func (f *Frame) Annotate(key string, value any) error {
	if key == KeyFnum || key == KeyTimestamp {
		return fmt.Errorf("%w: %q", ErrReservedKey, key)
	}
	f.Meta.Set(key, value)
	return nil
}

// Metadata is an insertion-ordered string-keyed mapping.
type Metadata struct {
	keys   []string
	values map[string]any
}

func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// Set stores value under key. New keys are appended to the key order.
func (m *Metadata) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// MarshalJSON encodes the mapping as a JSON object, keys in insertion order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Detection is one object found by a detection network, in pixel coordinates.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label,omitempty"`
	Confidence float32 `json:"confidence"`
	Left       float32 `json:"left"`
	Top        float32 `json:"top"`
	Right      float32 `json:"right"`
	Bottom     float32 `json:"bottom"`
}

func (d Detection) Width() float32  { return d.Right - d.Left }
func (d Detection) Height() float32 { return d.Bottom - d.Top }
func (d Detection) Area() float32   { return d.Width() * d.Height() }

// Center returns the center point of the bounding box
func (d Detection) Center() (x, y float32) {
	return d.Left + d.Width()/2, d.Top + d.Height()/2
}

// FrameRecord is a frame as persisted by a record store.
type FrameRecord struct {
	Fnum      uint64
	Timestamp float64
	ImagePath string
	Metadata  json.RawMessage
}

// ErrorResult captures the error object returned by the Python worker on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// ClassResult matches the JSON returned by the Python worker for a classification.
type ClassResult struct {
	ClassID    int     `json:"cid"`
	Confidence float32 `json:"confidence"`
}
