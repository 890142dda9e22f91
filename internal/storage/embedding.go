package storage

import (
	"encoding/binary"
	"math"
)

// SerializeEmbedding converts a float32 vector to bytes for SQLite storage.
// Uses little-endian encoding for portability. A nil vector stays nil so an
// absent embedding is distinguishable from a zero vector.
func SerializeEmbedding(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, len(vec)*4) // 4 bytes per float32
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DeserializeEmbedding converts bytes back to a float32 vector.
func DeserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
