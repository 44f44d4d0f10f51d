// Package chunker splits extracted document text into overlapping
// fixed-size windows. Window boundaries are deterministic: re-running the
// split on identical input yields identical chunks, which keeps chunk
// hashes stable across re-ingestions.
package chunker

import (
	"fmt"
	"strings"
)

// Split produces consecutive rune windows of up to size characters, each
// window starting size-overlap runes after the previous one. The final
// window may be shorter. Empty or whitespace-only text yields nil, which
// callers treat as "no chunks generated".
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in (0, %d), got %d", size, overlap)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := size - overlap

	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks, nil
}
