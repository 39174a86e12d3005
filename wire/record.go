package wire

import "strings"

// Record-format separators: fields are "key=value" joined by '\n', and
// records are joined by the single byte 0xC8 (not a valid continuation byte
// in any common text encoding, which is the point — it can't collide with
// field content in practice).
const (
	valueSep  = "="
	fieldSep  = "\n"
	recordSep = "\xc8"
)

// AppendValue appends a bare value (no key) followed by the field
// separator. Appending an empty value is a no-op that returns s unchanged.
func AppendValue(s, v string) string {
	if v == "" {
		return s
	}
	return s + v + fieldSep
}

// AppendField appends a "key=value" field followed by the field separator.
// A no-op if either key or value is empty.
func AppendField(s, k, v string) string {
	if k == "" || v == "" {
		return s
	}
	return s + k + valueSep + v + fieldSep
}

// AppendRecord appends r plus the record separator. A no-op if r is empty.
func AppendRecord(s, r string) string {
	if r == "" {
		return s
	}
	return s + r + recordSep
}

// PrependRecord prepends s plus the record separator ahead of r. A no-op if
// s is empty.
func PrependRecord(r, s string) string {
	if s == "" {
		return r
	}
	return s + recordSep + r
}

// EachField splits s on the field separator and invokes cb with a 1-based
// index for every non-empty token.
func EachField(s string, cb func(i int, line string)) {
	if s == "" {
		return
	}
	for i, f := range strings.Split(s, fieldSep) {
		if f == "" {
			continue
		}
		cb(i+1, f)
	}
}

// EachFieldKV splits s into "key=value" fields and invokes cb per pair. A
// field with no '=' is reported with an empty value.
func EachFieldKV(s string, cb func(k, v string)) {
	EachField(s, func(_ int, line string) {
		k, v, _ := strings.Cut(line, valueSep)
		cb(k, v)
	})
}

// EachRecord splits s on the record separator and invokes cb per non-empty
// record; iteration stops early if cb returns false.
func EachRecord(s string, cb func(record string) bool) {
	if s == "" {
		return
	}
	for _, r := range strings.Split(s, recordSep) {
		if r == "" {
			continue
		}
		if !cb(r) {
			return
		}
	}
}
