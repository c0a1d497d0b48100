package shadow

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// DefaultReportBufferSize is the report buffer capacity used when none is configured.
const DefaultReportBufferSize = 512

const (
	reportPrefix = `{"state":{"reported":{`
	reportSuffix = `}}}`

	// keyOverhead is the two quotes and colon around every key.
	keyOverhead = 3
)

// BuildReport serialises the reported bindings of reg into buf.
//
// The document has the shape {"state":{"reported":{"key":value,...}}} with
// keys in registration order. buf is reused from index 0 and never grown:
// the full size is computed first and, if it exceeds cap(buf), the call
// fails with ErrEncodingOverflow without writing anything.
//
// ErrNoReported is returned when there is nothing to report; callers treat
// it as "skip this cycle", not as a failure.
func BuildReport(buf []byte, reg *Registry) ([]byte, error) {
	buf = buf[:0]

	var scratch [64]byte
	size := len(reportPrefix) + len(reportSuffix)
	n := 0
	for _, b := range reg.entries {
		if !b.Reported {
			continue
		}
		v, err := appendValue(scratch[:0], b.Cell)
		if err != nil {
			return buf, fmt.Errorf("%w: key %q", err, b.Key)
		}
		if n > 0 {
			size++ // comma
		}
		size += len(b.Key) + keyOverhead + len(v)
		n++
	}

	if n == 0 {
		return buf, ErrNoReported
	}
	if size > cap(buf) {
		return buf, fmt.Errorf("%w: need %d bytes, have %d", ErrEncodingOverflow, size, cap(buf))
	}

	buf = append(buf, reportPrefix...)
	n = 0
	for _, b := range reg.entries {
		if !b.Reported {
			continue
		}
		if n > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = append(buf, b.Key...)
		buf = append(buf, '"', ':')
		buf, _ = appendValue(buf, b.Cell) // validated above
		n++
	}
	buf = append(buf, reportSuffix...)

	return buf, nil
}

// appendValue appends the JSON literal for the cell's current value.
func appendValue(dst []byte, c Cell) ([]byte, error) {
	switch c.Type() {
	case TypeUint32:
		return strconv.AppendUint(dst, uint64(c.Uint32()), 10), nil
	case TypeBool:
		return strconv.AppendBool(dst, c.Bool()), nil
	case TypeFloat32:
		f := float64(c.Float32())
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return dst, ErrEncodingInvalid
		}
		start := len(dst)
		dst = strconv.AppendFloat(dst, f, 'f', -1, 32)
		if bytes.IndexByte(dst[start:], '.') < 0 {
			dst = append(dst, '.', '0')
		}
		return dst, nil
	default:
		return dst, ErrInvalidCell
	}
}
