package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendFieldSkipsEmpty(t *testing.T) {
	s := AppendField("", "nickname", "")
	assert.Equal(t, "", s)

	s = AppendField(s, "", "alice")
	assert.Equal(t, "", s)

	s = AppendField(s, "nickname", "alice")
	assert.Equal(t, "nickname=alice\n", s)
}

func TestAppendValueAndRecord(t *testing.T) {
	rec := AppendValue("", "alice")
	rec = AppendValue(rec, "bob")
	full := AppendRecord("", rec)
	full = AppendRecord(full, AppendValue("", "carol"))

	var records []string
	EachRecord(full, func(r string) bool {
		records = append(records, r)
		return true
	})
	assert.Equal(t, []string{"alice\nbob\n", "carol\n"}, records)
}

func TestEachFieldKV(t *testing.T) {
	s := AppendField("", "uid", "42")
	s = AppendField(s, "nickname", "alice")

	got := map[string]string{}
	EachFieldKV(s, func(k, v string) { got[k] = v })
	assert.Equal(t, map[string]string{"uid": "42", "nickname": "alice"}, got)
}

func TestPrependRecord(t *testing.T) {
	r := PrependRecord("b", "a")
	assert.Equal(t, "a"+recordSep+"b", r)
	assert.Equal(t, "b", PrependRecord("b", ""))
}
