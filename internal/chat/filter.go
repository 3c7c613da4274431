// Package chat provides the banned-word filter applied to inbound chat
// messages before they reach the shared log.
package chat

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"
)

// RejectionReason is the fixed, generic notice sent to an author whose
// message tripped the filter. The matched word is deliberately not echoed.
const RejectionReason = "Message contains banned words."

const sampleFile = "# Add banned words here, one per line.\nbadword1\nbadword2\n"

// Filter is a case-insensitive substring matcher over a configured word
// list. An empty filter admits everything.
type Filter struct {
	words map[string]struct{}
}

// LoadFilter reads the word list from path: one word per line, blank lines
// and '#' comments skipped, matching case-insensitively. A missing file is
// created with a commented sample and yields an empty filter; a read error
// is logged and likewise yields an empty filter.
func LoadFilter(path string, logger *zap.SugaredLogger) *Filter {
	f := &Filter{words: make(map[string]struct{})}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("file %s does not exist; creating a sample", path)
		if werr := os.WriteFile(path, []byte(sampleFile), 0644); werr != nil {
			logger.Errorf("could not create %s: %v", path, werr)
		}
		return f
	}
	if err != nil {
		logger.Errorf("could not load %s: %v", path, err)
		return f
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		f.words[word] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf("could not read %s: %v", path, err)
	}

	logger.Infof("loaded %d banned words from %s", len(f.words), path)
	return f
}

// Allow reports whether a message passes the filter.
func (f *Filter) Allow(message string) bool {
	if len(f.words) == 0 {
		return true
	}
	lowered := strings.ToLower(message)
	for word := range f.words {
		if strings.Contains(lowered, word) {
			return false
		}
	}
	return true
}
