package psllh

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

func TestDecodeText(t *testing.T) {
	values, err := DecodeText(strings.NewReader("3\n1.0 2.0\n3.0\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, values)
}

func TestDecodeText_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"zero count", "0\n"},
		{"header mismatch", "4\n1.0 2.0 3.0\n"},
		{"garbage entry", "2\n1.0 banana\n"},
		{"garbage header", "x\n1.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeText(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestDecodeBinary(t *testing.T) {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], 2)
	buf.Write(scratch[:])
	for _, v := range []float64{1.5, -2.25} {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		buf.Write(scratch[:])
	}

	values, err := DecodeBinary(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.25}, values)
}

func TestDecodeBinary_Truncated(t *testing.T) {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], 5)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(1.0))
	buf.Write(scratch[:])

	_, err := DecodeBinary(&buf)
	assert.ErrorContains(t, err, "truncated")
}

func TestDecodeBinary_TrailingData(t *testing.T) {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], 1)
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(1.0))
	buf.Write(scratch[:])
	buf.WriteByte(0xCC)

	_, err := DecodeBinary(&buf)
	assert.ErrorContains(t, err, "more than")
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read("/nonexistent/file.psllh")
	assert.True(t, apperrors.IsIoFailure(err))

	_, err = Read("/nonexistent/file.binpsllh")
	assert.True(t, apperrors.IsIoFailure(err))
}

// The text and binary renditions of the same data agree in length and,
// entry for entry, within 1e-4.
func TestRoundTrip_TextBinaryComparison(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "sample.psllh")
	binPath := filepath.Join(dir, "sample.binpsllh")

	rng := rand.New(rand.NewSource(5))
	values := make([]float64, 1000)
	for i := range values {
		values[i] = rng.NormFloat64() * 100
	}

	require.NoError(t, WriteText(textPath, values))
	require.NoError(t, WriteBinary(binPath, values))

	textVariant, err := Read(textPath)
	require.NoError(t, err)
	binaryVariant, err := Read(binPath)
	require.NoError(t, err)

	require.Equal(t, len(textVariant), len(binaryVariant))
	for i := range textVariant {
		assert.InDelta(t, textVariant[i], binaryVariant[i], 1e-4, "index %d", i)
	}
}

func TestRoundTrip_BinaryExact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exact.binpsllh")

	values := []float64{0, 1, math.Pi, -math.MaxFloat64, math.SmallestNonzeroFloat64}
	require.NoError(t, WriteBinary(path, values))

	read, err := ReadBinary(path)
	require.NoError(t, err)
	assert.Equal(t, values, read)
}

func TestRead_PicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "data.psllh")

	require.NoError(t, WriteText(textPath, []float64{1, 2, 3}))

	values, err := Read(textPath)
	require.NoError(t, err)
	assert.Len(t, values, 3)
}
