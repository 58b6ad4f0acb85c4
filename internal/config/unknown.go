package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every config section.
var knownKeys = map[string][]string{
	"server":  {"listen", "pid_file", "shutdown_timeout"},
	"oauth":   {"client_id", "client_secret", "redirect_url", "token_file"},
	"jobs":    {"store", "db_path", "max_concurrent"},
	"results": {"backend", "dir", "retention", "s3_endpoint", "s3_bucket", "s3_access_key", "s3_secret_key", "s3_use_ssl", "s3_prefix"},
	"logging": {"log_level", "log_format"},
	"network": {"connect_timeout", "data_timeout", "user_agent"},
}

// knownSections is the sorted section list for Levenshtein matching. Sorted
// for deterministic suggestions when two candidates have the same edit
// distance.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := make(map[string]bool)

	for _, key := range undecoded {
		err := buildKeyError(md, key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key, suggesting the closest known
// section or key.
func buildKeyError(md *toml.MetaData, key toml.Key) error {
	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		if len(key) == 1 && md.Type(section) != "Table" {
			return unknownError("unknown config key %q", section, knownSections)
		}

		return unknownError("unknown config section [%s]", section, knownSections)
	}

	if len(key) < 2 {
		return nil
	}

	field := key[1]

	suggestion := closestMatch(field, keys)
	if suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s]; did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

func unknownError(format, name string, candidates []string) error {
	msg := fmt.Sprintf(format, name)

	if suggestion := closestMatch(name, candidates); suggestion != "" {
		return fmt.Errorf("%s; did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(strings.ToLower(unknown), k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
