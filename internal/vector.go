package internal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DefaultDimension is the width of the CLIP joint embedding space.
const DefaultDimension = 512

// Embedding is a half-precision vector produced by an image or text model.
type Embedding []float16.Float16

func NewEmbedding(vec []float32) Embedding {
	emb := make(Embedding, len(vec))
	for i, v := range vec {
		emb[i] = float16.Fromfloat32(v)
	}
	return emb
}

func (e Embedding) Dimension() int {
	return len(e)
}

func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = v.Float32()
	}
	return out
}

// Bytes encodes the vector as little-endian IEEE 754 half floats.
func (e Embedding) Bytes() []byte {
	buf := make([]byte, 2*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint16(buf[2*i:], v.Bits())
	}
	return buf
}

func EmbeddingFromBytes(data []byte) (Embedding, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("decode embedding: odd byte length %d", len(data))
	}
	emb := make(Embedding, len(data)/2)
	for i := range emb {
		emb[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return emb, nil
}

// Normalized returns a unit-length copy. A zero vector is returned unchanged.
func (e Embedding) Normalized() Embedding {
	return NewEmbedding(l2Normalize(e.Float32()))
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}

	return result
}
