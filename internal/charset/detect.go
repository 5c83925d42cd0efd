package charset

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
)

// chardet reports some charsets under names of its own
var detectorNames = map[string]Name{
	"gb-18030": GB18030,
}

// Detect guesses the charset of sample statistically. It is a fallback for
// when no candidate from the headers decodes the sample.
func (g *Guesser) Detect(sample []byte) (Name, error) {
	if len(sample) == 0 {
		return "", nil
	}
	if utf8.Valid(sample) {
		return UTF8, nil
	}

	detector := chardet.NewTextDetector()

	// Short samples are repeated so the detector has enough to work with
	content := sample
	if len(sample) < chunk {
		times := chunk / len(sample)
		content = make([]byte, 0, times*len(sample))
		for range times {
			content = append(content, sample...)
		}
	}

	results, err := detector.DetectAll(content)
	if errors.Is(err, chardet.NotDetectedError) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to detect charset: %w", err)
	}

	// Results are sorted by confidence. Among equally confident results
	// prefer the one the registry knows about.
	top := results[0]
	for _, res := range results {
		if res.Confidence != top.Confidence {
			break
		}
		if g.reg.IsKnown(res.Charset) {
			top = res
			break
		}
	}

	key := strings.ToLower(top.Charset)
	if name, ok := detectorNames[key]; ok {
		return name, nil
	}
	if name, ok := g.reg.Canonicalize(key); ok {
		return name, nil
	}
	return Name(top.Charset), nil
}
