package errdb

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// ParsedError is one error line extracted from a log stream.
type ParsedError struct {
	Line    int    `json:"line"`
	Level   string `json:"level"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

var (
	levelExpr = regexp.MustCompile(`(?i)\b(error|fatal|panic|crit(?:ical)?)\b`)
	codeExpr  = regexp.MustCompile(`\b(CLAW-\d{4})\b`)
)

// ParseReader extracts error lines from a log stream. Lines that carry no
// error-level marker and no CLAW code are skipped.
func ParseReader(r io.Reader) ([]ParsedError, error) {
	var out []ParsedError
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		level := levelExpr.FindString(line)
		code := codeExpr.FindString(line)
		if level == "" && code == "" {
			continue
		}
		out = append(out, ParsedError{
			Line:    lineNo,
			Level:   strings.ToLower(level),
			Code:    code,
			Message: line,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseFile extracts error lines from a log file.
func ParseFile(path string) ([]ParsedError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReader(f)
}
