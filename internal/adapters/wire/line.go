// Package wire implements the newline-delimited text record producers send to
// the collector: "<x>,<y>,<z>\n".
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/gangulwar/rollX/internal/domain"
)

// Delimiter terminates every record.
const Delimiter = '\n'

// ErrMalformedRecord is returned by Decode for lines that are not three
// comma separated floats.
var ErrMalformedRecord = errors.New("wire: malformed record")

// Encode renders s as a single record. Floats use the shortest decimal form
// that round-trips, with no precision truncation.
func Encode(s domain.Sample) []byte {
	b := make([]byte, 0, 48)
	return Append(b, s)
}

// Append is Encode into a caller supplied buffer.
func Append(dst []byte, s domain.Sample) []byte {
	dst = strconv.AppendFloat(dst, s.X, 'g', -1, 64)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, s.Y, 'g', -1, 64)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, s.Z, 'g', -1, 64)
	return append(dst, Delimiter)
}

// Decode parses one record. The trailing delimiter (and a preceding '\r') is
// optional.
func Decode(line []byte) (domain.Sample, error) {
	line = bytes.TrimSuffix(line, []byte{Delimiter})
	line = bytes.TrimSuffix(line, []byte{'\r'})

	parts := bytes.Split(line, []byte{','})
	if len(parts) != 3 {
		return domain.Sample{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedRecord, len(parts))
	}

	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(string(bytes.TrimSpace(p)), 64)
		if err != nil {
			return domain.Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRecord, i, err)
		}
		vals[i] = v
	}
	return domain.Sample{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
