package charset

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// DefaultSampleSize is the number of leading bytes a Guesser tries to decode
const DefaultSampleSize = 2 * 1024

// chunk is the size of the decoded output buffer used for each trial step
const chunk = 1024

// CandidateSet is an ordered set of canonical charset names. Order is the
// order in which names were first seen, and it breaks ties in Guess.
type CandidateSet []Name

// Contains reports whether s holds n, ignoring case
func (s CandidateSet) Contains(n Name) bool {
	for _, c := range s {
		if c.Equal(n) {
			return true
		}
	}
	return false
}

// Add appends n unless it is empty or already present
func (s CandidateSet) Add(n Name) CandidateSet {
	if n == "" || s.Contains(n) {
		return s
	}
	return append(s, n)
}

// Harvest collects the canonical charsets mentioned anywhere in values
func Harvest(reg *Registry, values []string) CandidateSet {
	var set CandidateSet
	for _, v := range values {
		if name, ok := reg.Canonicalize(v); ok {
			set = set.Add(name)
		}
	}
	return set
}

// Guesser picks a charset for a byte stream by strict trial decoding
type Guesser struct {
	reg        *Registry
	sampleSize int
}

// NewGuesser creates a guesser backed by reg
func NewGuesser(reg *Registry) *Guesser {
	return &Guesser{
		reg:        reg,
		sampleSize: DefaultSampleSize,
	}
}

// WithSampleSize sets how many leading bytes are sampled
func (g *Guesser) WithSampleSize(n int) *Guesser {
	if n > 0 {
		g.sampleSize = n
	}
	return g
}

// Guess returns the first candidate that decodes the sample from r without
// error. GB18030 accepts almost any input, so it is only tried as a last
// resort. An empty result means no candidate fits.
func (g *Guesser) Guess(candidates CandidateSet, r io.Reader) (Name, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	sample, err := io.ReadAll(io.LimitReader(r, int64(g.sampleSize)+1))
	if err != nil {
		return "", fmt.Errorf("failed to read sample: %w", err)
	}
	complete := len(sample) <= g.sampleSize
	if !complete {
		sample = sample[:g.sampleSize]
	}

	for _, c := range candidates {
		if c.Equal(GB18030) {
			continue
		}
		if c.Equal(UTF8) {
			if validUTF8(sample, complete) {
				return c, nil
			}
			continue
		}
		enc, err := g.reg.Encoding(c)
		if err != nil {
			continue
		}
		if canDecode(enc, sample, complete) {
			return c, nil
		}
	}

	if candidates.Contains(GB18030) {
		return GB18030, nil
	}
	return "", nil
}

// canDecode runs a strict decode of sample. x/text decoders substitute
// U+FFFD for invalid input instead of failing, so any U+FFFD in the output
// counts as a failure. A multibyte sequence cut off by the sample limit is
// not held against the charset.
func canDecode(enc encoding.Encoding, sample []byte, complete bool) bool {
	dec := enc.NewDecoder()
	dst := make([]byte, chunk)
	src := sample

	for {
		nDst, nSrc, err := dec.Transform(dst, src, complete)
		if containsReplacement(dst[:nDst]) {
			return false
		}
		src = src[nSrc:]

		switch {
		case err == nil:
			return true
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			return !complete
		default:
			return false
		}
	}
}

// validUTF8 checks UTF-8 input directly, so an encoded U+FFFD in the sample
// is accepted
func validUTF8(sample []byte, complete bool) bool {
	if utf8.Valid(sample) {
		return true
	}
	if complete {
		return false
	}
	for i := len(sample) - 1; i >= 0 && i >= len(sample)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(sample[i]) {
			return !utf8.FullRune(sample[i:]) && utf8.Valid(sample[:i])
		}
	}
	return false
}

func containsReplacement(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 3 {
			return true
		}
		b = b[size:]
	}
	return false
}
