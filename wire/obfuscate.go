package wire

import (
	"errors"
	"math/rand"
)

// ginger is the fixed lookup string behind the "variant 1-3" encoding
// family. The typo is original and preserved for bit-for-bit parity with
// the wire format the surviving clients expect.
const ginger = "Ginger was a big fat horse, a big fat horse was she. But don't tell that" +
	" to MaryLou becuase in love with her is she.I tell you this in private, " +
	"because I thought that you should know.But never say to MaryLou or both " +
	"our heads will go.I've said it once, I've said it twice, I'll say it onc" +
	"e again.Not a word of this to you know who or it will be our end!\r"

// codebook1 and codebook2 are the two fixed source strings mixed together
// to build a session's per-connection codebook table (v8.2+).
const (
	codebook1 = "WhEther it was me or wEather it was you, tis not the poinT I say. The Po" +
		"int tHat be is nOt to SEe ThE difference betWEen you and me.Four sconeS " +
		"and some ten pEnce EonS ago I loSt mY way. MaNy eOns have pAst since thE" +
		"n but I still don'T have much to sAY; THIRTENN AnD A HAlF DoLLARS FOR A " +
		"HAMBURGER?  WHAT'S IN tHE SPECIAL SAUCE, GOLD NUGGETS!"
	codebook2 = "95kjgr-t0GFGllbcbivvb;vmbl;kw-gmncFGDnxcvlkjt9^&*^$$)nfds0--rwefnfmcnfr9" +
		"0493jeGFDGsmkteotept;fdge;KL454954385rka8%^#)@gkfg0t3;l,0pejgfgkjgklfgke" +
		"rBVB03b  mB bibBV3rtnjfyggo9geaogig968959fk85jnfgsmCVbrkf,.er'wslr985BNV" +
		"BVXCV-9=]dlfkgVCVCVrkdgdgoB NJfgfx;ldffgjkDDGjkfdgkjreo-reFETUtogld0986b" +
		"mUYUjTfhkgoxiopggopflgkfdogdopgdlbdmgket0ettl;hglhmnll"
)

const (
	codebook1Len  = 0x156 // 342
	codebook2Len  = 0x156
	codebookLen   = 0x558 // 1368, the generated table's size
	cb2StepMask   = 15
	cb3StepMask   = 15
	encodeMaxLen  = 128
	decodeMaxLen  = 128 << 2
)

var tenPow = [5]int{1000, 100, 10, 1, 0}

// ErrDecodeFailed is returned whenever a decode, or validation, of an
// obfuscated field fails — malformed length, out-of-range digits, or a
// checksum mismatch. Callers treat it uniformly as a rejected credential.
var ErrDecodeFailed = errors.New("wire: decode failed")

// msSeed is the classic Microsoft C runtime LCG step.
func msSeed(x uint32) uint32 {
	return x*0x343fd + 0x269e3c
}

// msRand extracts a 15-bit pseudo-random value from one LCG step.
func msRand(x uint32) uint32 {
	return (msSeed(x) >> 16) & 0x7fff
}

// Obfuscator holds the per-connection state needed to encode and decode
// fields under either the ginger variants or the v8.2+ codebook: the
// session challenge, the running check-digit LCG state, and (once
// generated) the codebook table and its three generation parameters.
type Obfuscator struct {
	Challenge       uint16
	ProtocolVersion uint16

	// Time is the running LCG state that produces check digits for the
	// ginger variants. It advances by one step per encoded byte and per
	// validated check digit, so encode and validate must be called the
	// same number of times to stay in lock-step (property 3).
	Time uint32

	Codebook  []byte // nil until GenerateCodebook is called
	CB1Offset uint16
	CB2Step   uint16
	CB3Step   uint16

	rng *rand.Rand
}

// NewObfuscator builds an Obfuscator for a fresh connection. challenge must
// already be in [1,226]; timeSeed seeds the check-digit LCG (the server
// derives it from the wall clock when the connection is accepted).
func NewObfuscator(protocolVersion uint16, challenge uint16, timeSeed uint32, rng *rand.Rand) *Obfuscator {
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(timeSeed)))
	}
	return &Obfuscator{
		Challenge:       challenge,
		ProtocolVersion: protocolVersion,
		Time:            timeSeed,
		rng:             rng,
	}
}

// usesCodebook reports whether this connection has graduated to the v8.2+
// codebook scheme, which fully replaces the ginger variants once active.
func (o *Obfuscator) usesCodebook() bool {
	return o.ProtocolVersion >= ProtocolVersion82 && o.CB1Offset != 0
}

// GenerateCodebook builds the 1368-byte codebook table for this session
// from three freshly-chosen parameters, mixing the two fixed source
// strings with an interleaved digit channel.
func (o *Obfuscator) GenerateCodebook() {
	o.CB1Offset = uint16(1 + o.rng.Intn(codebook1Len>>2))
	o.CB2Step = uint16(1 + (o.rng.Int() & cb2StepMask))
	o.CB3Step = uint16(1 + (o.rng.Int() & cb3StepMask))

	cb := make([]byte, codebookLen)
	for i := 0; i < codebookLen; i += 2 {
		if (i>>1)&1 != 0 {
			cb[i] = codebook2[(((i>>2)+1)*int(o.CB2Step))%codebook2Len]
		} else {
			cb[i] = codebook1[((i>>2)+int(o.CB1Offset))%codebook1Len]
		}
		cb[i+1] = '0' + byte((((i>>1)+1)*int(o.CB3Step))%0x4b)
	}
	o.Codebook = cb
}

// Encode produces a decimal-digit string for s under the given ginger
// variant (1-3), or under the codebook scheme if this session has one and
// its protocol version is >= 8.2. s is truncated to 128 bytes.
func (o *Obfuscator) Encode(variant int, s string) (string, error) {
	if o.usesCodebook() {
		return o.encodeCodebook(s)
	}
	return o.encodeVariant(variant, s)
}

// Decode is the inverse of Encode.
func (o *Obfuscator) Decode(variant int, s string) (string, error) {
	if o.usesCodebook() {
		return o.decodeCodebook(s)
	}
	return o.decodeVariant(variant, s)
}

func (o *Obfuscator) encodeVariant(variant int, s string) (string, error) {
	if variant < 1 || variant > 3 || s == "" {
		return "", ErrDecodeFailed
	}
	if len(s) > encodeMaxLen {
		s = s[:encodeMaxLen]
	}

	challenge := int(o.Challenge)
	out := make([]byte, 0, len(s)*4)
	for i := 0; i < len(s); i++ {
		var val int
		switch variant {
		case 1:
			val = 0x7a + i*(13-i) + int(int8(s[i])) + int(ginger[challenge+i])
		case 2:
			val = 0x7a + i + int(int8(s[i])) + int(ginger[challenge+i])
		case 3:
			val = 0x7a + int(int8(s[i])) + int(ginger[i]) + challenge*i
			challenge--
		}
		val = ((val % 1000) + 1000) % 1000
		out = append(out, digits3(val)...)

		check := (uint32(msRand(o.Time)) * 10) / 32678 & 7
		out = append(out, '0'+byte(check))
		o.Time = msSeed(o.Time)
	}

	return string(out), nil
}

func (o *Obfuscator) decodeVariant(variant int, s string) (string, error) {
	if variant < 1 || variant > 3 || s == "" || len(s)%4 != 0 {
		return "", ErrDecodeFailed
	}
	if len(s) > decodeMaxLen {
		s = s[:decodeMaxLen]
	}

	challenge := int(o.Challenge)
	out := make([]byte, len(s)/4)
	for i := 0; i < len(out); i++ {
		g := s[i*4 : i*4+3]
		n, ok := parseDigits3(g)
		if !ok {
			return "", ErrDecodeFailed
		}

		var b int
		switch variant {
		case 1:
			b = n - 0x7a - i*(13-i) - int(ginger[challenge+i])
		case 2:
			b = n - 0x7a - i - int(ginger[challenge+i])
		case 3:
			b = n - 0x7a - int(ginger[i]) - challenge*i
			challenge--
		}
		// Encoding kept only val mod 1000; pick the one residue that is a
		// signed byte again.
		b = ((b+128)%1000+1000)%1000 - 128
		out[i] = byte(b)
	}

	return string(out), nil
}

// Validate walks only the check digits of s (as produced by encodeVariant)
// and reports whether they match the LCG sequence starting from the
// current Time state, advancing Time exactly as encoding would have.
func (o *Obfuscator) Validate(variant int, s string) bool {
	if variant < 1 || variant > 3 || s == "" || len(s)%4 != 0 {
		return false
	}
	for i := 0; i < len(s)/4; i++ {
		want := (uint32(msRand(o.Time)) * 10) / 32678 & 7
		got := s[i*4+3] - '0'
		if byte(want) != got {
			return false
		}
		o.Time = msSeed(o.Time)
	}
	return true
}

func (o *Obfuscator) encodeCodebook(s string) (string, error) {
	if s == "" || o.Codebook == nil {
		return "", ErrDecodeFailed
	}

	raw := int(msRand(uint32(o.rng.Int63()))) * min(8999, codebookLen-256)
	sPos := 1001 + ((raw >> 15) | ((raw >> 14) & 1))

	prefixGroups := 1
	if sPos%3 == 0 {
		prefixGroups++
	}
	if sPos&3 == 0 {
		prefixGroups++
	}

	out := make([]byte, prefixGroups*4, prefixGroups*4+len(s)*4)
	copy(out[:4], digits4(sPos))
	for i := 4; i < prefixGroups*4; i++ {
		out[i] = '0' + byte(o.rng.Intn(10))
	}

	challenge := int(o.Challenge)
	for i := 0; i < len(s); i++ {
		val := 0x71 + i + int(int8(s[i])) + int(o.Codebook[challenge+i])
		val = ((val % 1000) + 1000) % 1000
		group := digits3(val)

		araw := int(msRand(uint32(o.rng.Int63()))) * 9
		a := (1 + ((araw >> 15) | ((araw >> 14) & 1))) % 10
		for j := range group {
			group[j] += byte(a)
			if group[j] > '9' {
				group[j] -= 10
			}
		}

		pos := (int(o.Codebook[challenge+i]) + i + sPos) & 3
		var g4 [4]byte
		copy(g4[:pos], group[:pos])
		g4[pos] = '0' + byte(a)
		copy(g4[pos+1:], group[pos:])
		out = append(out, g4[:]...)
	}

	return string(out), nil
}

func (o *Obfuscator) decodeCodebook(s string) (string, error) {
	if len(s) < 4 || o.Codebook == nil {
		return "", ErrDecodeFailed
	}

	sPos, ok := parseDigits4(s[:4])
	if !ok {
		return "", ErrDecodeFailed
	}

	prefixGroups := 1
	if sPos%3 == 0 {
		prefixGroups++
	}
	if sPos&3 == 0 {
		prefixGroups++
	}
	prefixLen := prefixGroups * 4
	if len(s) < prefixLen {
		return "", ErrDecodeFailed
	}
	body := s[prefixLen:]
	if len(body)%4 != 0 {
		return "", ErrDecodeFailed
	}

	challenge := int(o.Challenge)
	out := make([]byte, len(body)/4)
	for i := 0; i < len(out); i++ {
		group := body[i*4 : i*4+4]
		aPos := (int(o.Codebook[challenge+i]) + i + sPos) & 3
		a := int(group[aPos] - '0')
		if a < 0 || a > 9 {
			return "", ErrDecodeFailed
		}

		n := 0
		for j := 0; j < 4; j++ {
			d := int(group[j]-'0') - a
			d = ((d % 10) + 10) % 10
			var idx int
			switch {
			case j == aPos:
				idx = 4
			case j < aPos:
				idx = j + 1
			default:
				idx = j
			}
			n += tenPow[idx] * d
		}

		out[i] = byte(n - 0x71 - int(o.Codebook[challenge+i]) - i)
	}

	return string(out), nil
}

func digits3(v int) []byte {
	return []byte{'0' + byte((v/100)%10), '0' + byte((v/10)%10), '0' + byte(v%10)}
}

func digits4(v int) []byte {
	return []byte{'0' + byte((v/1000)%10), '0' + byte((v/100)%10), '0' + byte((v/10)%10), '0' + byte(v%10)}
}

func parseDigits3(s string) (int, bool) {
	n := 0
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

func parseDigits4(s string) (int, bool) {
	n := 0
	for i := 0; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}
