package config

import (
	"strings"

	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/simerr"
)

// ApplyLogFlags parses a set of "--log" flag values of the form
// "category.threshold=level" (spec §6's `--log=<category>.threshold=…`
// filter syntax) and registers each one via log.SetCategoryThreshold.
// A malformed entry is InvalidArgument; earlier entries in the slice
// are still applied before the error is returned.
func ApplyLogFlags(values []string) error {
	var firstErr error
	for _, v := range values {
		category, level, err := parseLogFlag(v)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.SetCategoryThreshold(category, level)
	}
	return firstErr
}

func parseLogFlag(v string) (string, log.Level, error) {
	eq := strings.IndexByte(v, '=')
	if eq < 0 {
		return "", "", simerr.New(simerr.InvalidArgument, "config")
	}
	key, level := v[:eq], v[eq+1:]
	category := strings.TrimSuffix(key, ".threshold")
	if category == key || category == "" || level == "" {
		return "", "", simerr.New(simerr.InvalidArgument, "config")
	}
	return category, log.Level(level), nil
}
