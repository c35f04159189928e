package util

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

// ErrNotAvailable is returned for fields a tool reports as unavailable,
// such as "[N/A]" or "[Not Supported]".
var ErrNotAvailable = errors.New("value not available")

// ReadFileLines reads a file and returns its lines.
func ReadFileLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// ParseKeyValueFile parses a file with "key value" or "key: value" lines.
func ParseKeyValueFile(path string) (map[string]string, error) {
	lines, err := ReadFileLines(path)
	if err != nil {
		return nil, err
	}
	return ParseKeyValueLines(lines), nil
}

// ParseKeyValueLines parses lines with "key value" or "key: value" format.
func ParseKeyValueLines(lines []string) map[string]string {
	m := make(map[string]string)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var key, val string
		if idx := strings.Index(line, ":"); idx >= 0 {
			key = strings.TrimSpace(line[:idx])
			val = strings.TrimSpace(line[idx+1:])
		} else {
			fields := strings.Fields(line)
			key = fields[0]
			val = strings.Join(fields[1:], " ")
		}
		if key != "" {
			m[key] = val
		}
	}
	return m
}

// ParseInt parses a string to int, returning 0 on error.
func ParseInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func unavailable(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.HasPrefix(s, "[") || strings.EqualFold(s, "N/A")
}

// ParseOptionalFloat parses a float, returning ErrNotAvailable for
// placeholder text.
func ParseOptionalFloat(s string) (float64, error) {
	if unavailable(s) {
		return 0, ErrNotAvailable
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseOptionalInt is ParseOptionalFloat for integers.
func ParseOptionalInt(s string) (int, error) {
	if unavailable(s) {
		return 0, ErrNotAvailable
	}
	return strconv.Atoi(strings.TrimSpace(s))
}
