// Package psllh reads and writes per-site log-likelihood summand files.
//
// Two formats exist: the ASCII .psllh file starts with the entry count
// followed by whitespace-separated doubles, and the binary .binpsllh file
// packs a little-endian uint64 count before the raw IEEE-754 doubles.
package psllh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// Read loads a summand file, choosing the format by file extension.
func Read(path string) ([]float64, error) {
	if strings.HasSuffix(path, ".binpsllh") {
		return ReadBinary(path)
	}
	return ReadText(path)
}

// ReadText loads an ASCII .psllh file.
func ReadText(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, "open summand file", err)
	}
	defer file.Close()

	values, err := DecodeText(file)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, path, err)
	}
	return values, nil
}

// DecodeText reads the ASCII format from r.
func DecodeText(r io.Reader) ([]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	scanner.Split(bufio.ScanWords)

	if !scanner.Scan() {
		return nil, fmt.Errorf("missing entry count header")
	}
	count, err := strconv.ParseUint(scanner.Text(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("entry count header: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("entry count header is zero")
	}

	values := make([]float64, 0, count)
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", len(values), err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if uint64(len(values)) != count {
		return nil, fmt.Errorf("header announces %d entries, file holds %d", count, len(values))
	}
	return values, nil
}

// ReadBinary loads a binary .binpsllh file.
func ReadBinary(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, "open summand file", err)
	}
	defer file.Close()

	values, err := DecodeBinary(file)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, path, err)
	}
	return values, nil
}

// DecodeBinary reads the binary format from r.
func DecodeBinary(r io.Reader) ([]float64, error) {
	br := bufio.NewReader(r)

	var header [8]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("entry count header: %w", err)
	}
	count := binary.LittleEndian.Uint64(header[:])
	if count == 0 {
		return nil, fmt.Errorf("entry count header is zero")
	}

	values := make([]float64, count)
	var buf [8]byte
	for i := range values {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("truncated after %d of %d entries: %w", i, count, err)
		}
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	}

	// Trailing garbage means the header undercounts.
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("file holds more than the %d announced entries", count)
	}

	return values, nil
}

// WriteText writes values in the ASCII format.
func WriteText(path string, values []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "create summand file", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d\n", len(values))
	for _, v := range values {
		fmt.Fprintf(w, "%.17g\n", v)
	}
	if err := w.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, path, err)
	}
	return nil
}

// WriteBinary writes values in the binary format.
func WriteBinary(path string, values []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "create summand file", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(values)))
	w.Write(buf[:])

	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		w.Write(buf[:])
	}
	if err := w.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, path, err)
	}
	return nil
}
