// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package storage persists trained models.
//
// # Artifact Format
//
// A model artifact is one blob:
//
//	magic    "SARM"   4 bytes
//	version  uint16   big endian
//	checksum [32]byte SHA-256 of the uncompressed payload
//	payload  zstd-compressed sections
//
// The payload holds, in order: the JSON metadata, the scoring properties,
// the reverse item index and the similarity model. Integers are big endian;
// strings and lists are length-prefixed. Readers reject unknown versions.
//
// # Serving
//
// ModelCache keeps decoded models for a fixed absolute TTL and implements
// recommend.ModelProvider. Concurrent loads of one model share a single
// download.
package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/tomtom215/sarec/internal/recommend"
)

// FormatVersion is the artifact version written by Encode.
const FormatVersion uint16 = 1

var magic = [4]byte{'S', 'A', 'R', 'M'}

const headerLen = 4 + 2 + sha256.Size

var (
	// ErrBadMagic means the blob is not a model artifact.
	ErrBadMagic = errors.New("not a model artifact")

	// ErrUnsupportedVersion means the artifact was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported model artifact version")

	// ErrChecksumMismatch means the payload is corrupt.
	ErrChecksumMismatch = errors.New("model artifact checksum mismatch")
)

// Metadata describes a stored model.
type Metadata struct {
	ModelID          string    `json:"model_id"`
	TrainedAt        time.Time `json:"trained_at"`
	SavedAt          time.Time `json:"saved_at"`
	ItemCount        int       `json:"item_count"`
	PairCount        int       `json:"pair_count"`
	UserCount        int       `json:"user_count"`
	UsageEventCount  int       `json:"usage_event_count"`
	Checksum         string    `json:"checksum,omitempty"`
	SizeBytes        int64     `json:"size_bytes,omitempty"`
	TrainingDuration int64     `json:"training_duration_ms,omitempty"`
}

var (
	zstdEncoder = newEncoder()
	zstdDecoder = newDecoder()
)

func newEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	return enc
}

func newDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
	return dec
}

// Encode serializes model with meta into an artifact. meta.Checksum and
// meta.SizeBytes are filled from the result.
func Encode(model *recommend.TrainedModel, meta *Metadata) ([]byte, error) {
	if model == nil || model.Similarity == nil {
		return nil, errors.New("encode model: model is incomplete")
	}
	if meta == nil {
		meta = &Metadata{}
	}

	var w writer
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	w.bytes(metaJSON)
	if err := w.properties(model.Properties); err != nil {
		return nil, err
	}
	w.strings(model.Items)
	w.similarity(model.Similarity)

	payload := w.buf.Bytes()
	sum := sha256.Sum256(payload)

	out := make([]byte, 0, headerLen+len(payload)/2)
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint16(out, FormatVersion)
	out = append(out, sum[:]...)
	out = zstdEncoder.EncodeAll(payload, out)

	meta.Checksum = fmt.Sprintf("%x", sum)
	meta.SizeBytes = int64(len(out))
	return out, nil
}

// Decode parses an artifact produced by Encode.
func Decode(data []byte) (*recommend.TrainedModel, *Metadata, error) {
	if len(data) < headerLen || !bytes.Equal(data[:4], magic[:]) {
		return nil, nil, ErrBadMagic
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != FormatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	var want [sha256.Size]byte
	copy(want[:], data[6:headerLen])

	payload, err := zstdDecoder.DecodeAll(data[headerLen:], nil)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress model: %w", err)
	}
	if sha256.Sum256(payload) != want {
		return nil, nil, ErrChecksumMismatch
	}

	r := reader{data: payload}
	meta := &Metadata{}
	if raw := r.bytes(); r.err == nil {
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	model := &recommend.TrainedModel{}
	model.Properties = r.properties()
	model.Items = r.strings()
	model.Similarity = r.similarity()
	if r.err != nil {
		return nil, nil, fmt.Errorf("decode model: %w", r.err)
	}
	if r.off != len(r.data) {
		return nil, nil, fmt.Errorf("decode model: %d trailing bytes", len(r.data)-r.off)
	}
	meta.Checksum = fmt.Sprintf("%x", want)
	meta.SizeBytes = int64(len(data))
	return model, meta, nil
}

type writer struct {
	buf bytes.Buffer
	tmp [8]byte
}

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) u32(v uint32) {
	binary.BigEndian.PutUint32(w.tmp[:4], v)
	w.buf.Write(w.tmp[:4])
}

func (w *writer) u64(v uint64) {
	binary.BigEndian.PutUint64(w.tmp[:8], v)
	w.buf.Write(w.tmp[:8])
}

func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *writer) strings(ss []string) {
	w.u32(uint32(len(ss)))
	for _, s := range ss {
		w.bytes([]byte(s))
	}
}

func (w *writer) u32s(vs []uint32) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.u32(v)
	}
}

func (w *writer) properties(p recommend.Properties) error {
	w.bool(p.IncludeHistory)
	w.bool(p.EnableUserAffinity)
	w.bool(p.IsUserToItemSupported)
	w.bool(p.EnableBackfilling)
	ref, err := p.ReferenceDate.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode reference date: %w", err)
	}
	w.bytes(ref)
	w.u64(uint64(p.Decay))
	w.u64(uint64(p.UniqueUsersCount))
	return nil
}

func (w *writer) similarity(m *recommend.SimilarityModel) {
	w.bytes([]byte(m.Function))
	w.u32(uint32(m.ItemCount))
	w.u32(uint32(len(m.Pairs)))
	for _, p := range m.Pairs {
		w.u32(p.A)
		w.u32(p.B)
		w.u32(p.Count)
		w.f64(p.Score)
	}
	w.u32s(m.Occurrences)
	w.u32s(m.Popular)
	w.u32(uint32(len(m.FeatureWeights)))
	for _, fw := range m.FeatureWeights {
		w.bytes([]byte(fw.Name))
		w.f64(fw.Weight)
	}
}

// reader decodes sections; the first error sticks and later reads return zero values.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool { return r.u8() == 1 }

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

// count reads a list length and checks it against the remaining bytes.
func (r *reader) count(elemSize int) int {
	n := int(r.u32())
	if r.err == nil && n*elemSize > len(r.data)-r.off {
		r.err = fmt.Errorf("list of %d exceeds payload at offset %d", n, r.off)
		return 0
	}
	return n
}

func (r *reader) bytes() []byte {
	n := r.count(1)
	return r.take(n)
}

func (r *reader) strings() []string {
	n := r.count(4)
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, string(r.bytes()))
	}
	return out
}

func (r *reader) u32s() []uint32 {
	n := r.count(4)
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.u32()
	}
	return out
}

func (r *reader) properties() recommend.Properties {
	p := recommend.Properties{
		IncludeHistory:        r.bool(),
		EnableUserAffinity:    r.bool(),
		IsUserToItemSupported: r.bool(),
		EnableBackfilling:     r.bool(),
	}
	if ref := r.bytes(); r.err == nil {
		if err := p.ReferenceDate.UnmarshalBinary(ref); err != nil {
			r.err = fmt.Errorf("reference date: %w", err)
		}
	}
	p.Decay = time.Duration(r.u64())
	p.UniqueUsersCount = int(r.u64())
	return p
}

func (r *reader) similarity() *recommend.SimilarityModel {
	m := &recommend.SimilarityModel{}
	m.Function = recommend.SimilarityFunction(r.bytes())
	m.ItemCount = int(r.u32())
	n := r.count(20)
	m.Pairs = make([]recommend.Pair, n)
	for i := range m.Pairs {
		m.Pairs[i] = recommend.Pair{A: r.u32(), B: r.u32(), Count: r.u32(), Score: r.f64()}
	}
	m.Occurrences = r.u32s()
	m.Popular = r.u32s()
	if fn := r.count(12); fn > 0 {
		m.FeatureWeights = make([]recommend.FeatureWeight, fn)
		for i := range m.FeatureWeights {
			m.FeatureWeights[i] = recommend.FeatureWeight{Name: string(r.bytes()), Weight: r.f64()}
		}
	}
	return m
}
