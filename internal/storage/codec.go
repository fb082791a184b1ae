package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vector BLOBs are little-endian float32, 4 bytes per component. The row's
// dimension column is the authoritative length; a size disagreement on read
// means the snapshot is corrupt.

func vectorToBytes(vec []float32) []byte {
	const size = 4
	out := make([]byte, len(vec)*size)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToVector(b []byte, dimension int) ([]float32, error) {
	const size = 4
	if len(b) != dimension*size {
		return nil, fmt.Errorf("vector blob is %d bytes, expected %d for %d dims",
			len(b), dimension*size, dimension)
	}
	out := make([]float32, dimension)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
