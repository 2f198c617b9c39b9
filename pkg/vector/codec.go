package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embeddings are exchanged and stored as exactly D little-endian 32-bit
// floats. Any blob with a different byte length is rejected rather than
// coerced.

// SerializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format and mirror storage.
func SerializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DeserializeFloat32 converts a little-endian byte slice back to a float32
// slice of exactly dims components.
func DeserializeFloat32(b []byte, dims uint) ([]float32, error) {
	if uint(len(b)) != dims*4 {
		return nil, fmt.Errorf("%w: blob is %d bytes, want %d", ErrBadEmbedding, len(b), dims*4)
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// ValidateDims rejects embeddings whose component count differs from dims.
func ValidateDims(v []float32, dims uint) error {
	if uint(len(v)) != dims {
		return fmt.Errorf("%w: got %d components, want %d", ErrBadEmbedding, len(v), dims)
	}
	return nil
}
