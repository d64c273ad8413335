// Package validate holds the input rules applied by the wizards.
//
// The predicate forms (Text, URL, ...) report a boolean and never fail on
// malformed input. The gate forms (CheckText, CheckURL, ...) return a *Error
// carrying a reason suitable for showing to the user.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

const (
	MaxTextLen       = 1000
	MaxOptionLen     = 100
	MinOptions       = 2
	MaxOptions       = 3
	MaxNameLen       = 50
	MaxModuleCodeLen = 20
)

var (
	v          = validator.New()
	urlRe      = regexp.MustCompile(`^https?://`)
	moduleCode = regexp.MustCompile(`^[A-Za-z0-9_]{1,20}$`)
)

// Error is a rule violation the user can fix by sending different input.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func fail(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Text reports whether s is non-empty and at most MaxTextLen characters.
func Text(s string) bool {
	return v.Var(s, "required,max=1000") == nil
}

// URL reports whether s starts with http:// or https://.
func URL(s string) bool {
	return urlRe.MatchString(s)
}

// Options reports whether s splits into at least two usable answer options.
func Options(s string) bool {
	_, ok := splitOptions(s)
	return ok
}

// SplitOptions returns the trimmed, non-empty lines of s.
func SplitOptions(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitOptions(s string) ([]string, bool) {
	opts := SplitOptions(s)
	if len(opts) < MinOptions {
		return opts, false
	}
	for _, o := range opts {
		if utf8.RuneCountInString(o) > MaxOptionLen {
			return opts, false
		}
	}
	return opts, true
}

// AnswerIndex reports whether s is an integer in [1, n].
func AnswerIndex(s string, n int) bool {
	_, ok := parseIndex(s, n)
	return ok
}

func parseIndex(s string, n int) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i, true
}

// NormalizeName trims s and puts it in Unicode NFC form.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// PersonName reports whether s is 1 to MaxNameLen Unicode letters.
func PersonName(s string) bool {
	return v.Var(NormalizeName(s), "required,max=50,alphaunicode") == nil
}

// ModuleCodeShape reports whether s is 1 to MaxModuleCodeLen ASCII letters,
// digits or underscores. Uniqueness is checked against the store by the caller.
func ModuleCodeShape(s string) bool {
	return moduleCode.MatchString(s)
}

// CheckText is the gate form of Text.
func CheckText(s string) error {
	if strings.TrimSpace(s) == "" {
		return fail("Text must not be empty.")
	}
	if !Text(s) {
		return fail("Text is too long: at most %d characters.", MaxTextLen)
	}
	return nil
}

// CheckURL is the gate form of URL.
func CheckURL(s string) error {
	if !URL(s) {
		return fail("Link must start with http:// or https://.")
	}
	return nil
}

// CheckOptions validates s and returns the parsed options. More than
// MaxOptions options are rejected as a question holds at most three.
func CheckOptions(s string) ([]string, error) {
	opts, ok := splitOptions(s)
	if !ok {
		return nil, fail("Send %d to %d options, one per line, each up to %d characters.", MinOptions, MaxOptions, MaxOptionLen)
	}
	if len(opts) > MaxOptions {
		return nil, fail("At most %d options are allowed.", MaxOptions)
	}
	return opts, nil
}

// CheckAnswerIndex validates s against n options and returns the index.
func CheckAnswerIndex(s string, n int) (int, error) {
	i, ok := parseIndex(s, n)
	if !ok {
		return 0, fail("Send a number from 1 to %d.", n)
	}
	return i, nil
}

// CheckPersonName validates s and returns it normalized.
func CheckPersonName(s string) (string, error) {
	if !PersonName(s) {
		return "", fail("A name must be 1 to %d letters without spaces, digits or symbols.", MaxNameLen)
	}
	return NormalizeName(s), nil
}

// CheckModuleCodeShape is the gate form of ModuleCodeShape.
func CheckModuleCodeShape(s string) error {
	if !ModuleCodeShape(s) {
		return fail("A module code is 1 to %d latin letters, digits or underscores.", MaxModuleCodeLen)
	}
	return nil
}
