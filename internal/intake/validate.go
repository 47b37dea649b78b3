// Package intake validates video requests before a job is created.
package intake

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNameLen    = 2
	minCountryLen = 2
)

var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// Request is the client-supplied input for a personalized video.
type Request struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Country string `json:"country"`
}

// ValidationError lists every problem found in a Request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Problems, "; ")
}

// Validate checks r and returns a trimmed copy with the phone normalized.
// On failure the error is a *ValidationError.
func Validate(r Request) (Request, error) {
	out := Request{
		Name:    strings.TrimSpace(r.Name),
		Phone:   stripSpace(r.Phone),
		Country: strings.TrimSpace(r.Country),
	}

	var problems []string
	switch {
	case utf8.RuneCountInString(out.Name) < minNameLen:
		problems = append(problems, "name must be at least 2 characters")
	case !lettersAndSpaces(out.Name):
		problems = append(problems, "name may only contain letters and spaces")
	}
	if !phonePattern.MatchString(out.Phone) {
		problems = append(problems, "phone must be 10 to 15 digits with an optional leading +")
	}
	if utf8.RuneCountInString(out.Country) < minCountryLen {
		problems = append(problems, "country must be at least 2 characters")
	}
	if len(problems) > 0 {
		return Request{}, &ValidationError{Problems: problems}
	}

	out.Phone = NormalizePhone(out.Phone)
	return out, nil
}

// NormalizePhone keeps only digits and prefixes a single +.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone) + 1)
	b.WriteByte('+')
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lettersAndSpaces(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
