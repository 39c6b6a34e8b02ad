package rules

import (
	"strconv"
	"unicode/utf8"
)

// Serialize writes rules in the wire format Parse reads. Every field is
// written explicitly, so defaults survive a round trip.
func Serialize(rules []Rule) []byte {
	b := make([]byte, 0, 256*len(rules)+2)
	b = append(b, '[')
	for i, r := range rules {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendRule(b, r)
	}
	return append(b, ']')
}

func appendRule(b []byte, r Rule) []byte {
	b = append(b, `{"type":`...)
	b = appendString(b, r.Type.String())
	b = append(b, `,"action":`...)
	b = appendString(b, r.Action.String())

	switch r.Type {
	case TypeDetection:
		b = append(b, `,"class_id":`...)
		b = strconv.AppendInt(b, int64(r.ClassID), 10)
		b = appendFloatField(b, "min_confidence", r.MinConfidence)
	case TypeOCR:
		b = append(b, `,"roi":{"x":`...)
		b = appendFloat(b, r.ROI.X)
		b = append(b, `,"y":`...)
		b = appendFloat(b, r.ROI.Y)
		b = append(b, `,"width":`...)
		b = appendFloat(b, r.ROI.Width)
		b = append(b, `,"height":`...)
		b = appendFloat(b, r.ROI.Height)
		b = append(b, `},"target":`...)
		b = appendString(b, r.Target)
		b = append(b, `,"exact_match":`...)
		b = strconv.AppendBool(b, r.ExactMatch)
		b = append(b, `,"case_sensitive":`...)
		b = strconv.AppendBool(b, r.CaseSensitive)
		if r.HasTapPoint {
			b = appendFloatField(b, "tap_x", r.TapX)
			b = appendFloatField(b, "tap_y", r.TapY)
		}
	}

	b = appendFloatField(b, "tap_offset_x", r.TapOffsetX)
	b = appendFloatField(b, "tap_offset_y", r.TapOffsetY)
	b = append(b, `,"min_interval_ms":`...)
	b = strconv.AppendInt(b, r.MinIntervalMs, 10)
	if r.HasSwipeEnd {
		b = appendFloatField(b, "swipe_end_x", r.SwipeEndX)
		b = appendFloatField(b, "swipe_end_y", r.SwipeEndY)
	}
	b = append(b, `,"swipe_duration_ms":`...)
	b = strconv.AppendInt(b, int64(r.SwipeDurationMs), 10)
	return append(b, '}')
}

func appendFloatField(b []byte, key string, v float32) []byte {
	b = append(b, ',', '"')
	b = append(b, key...)
	b = append(b, '"', ':')
	return appendFloat(b, v)
}

// appendFloat writes the shortest decimal that reads back to the same
// float32.
func appendFloat(b []byte, v float32) []byte {
	return strconv.AppendFloat(b, float64(v), 'g', -1, 32)
}

func formatFloat(v float64, bits int) string {
	return strconv.FormatFloat(v, 'g', -1, bits)
}

const hexDigits = "0123456789abcdef"

func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				b = append(b, '\\', c)
			case c == '\n':
				b = append(b, '\\', 'n')
			case c == '\r':
				b = append(b, '\\', 'r')
			case c == '\t':
				b = append(b, '\\', 't')
			case c < 0x20:
				b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			default:
				b = append(b, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b = append(b, `�`...)
		} else {
			b = append(b, s[i:i+size]...)
		}
		i += size
	}
	return append(b, '"')
}
