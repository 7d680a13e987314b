package id

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

// Length is the fixed length of every record id.
const Length = 20

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// occurrenceSep separates a template id from an occurrence index.
const occurrenceSep = ":"

// New returns a random record id of Length alphanumeric characters.
func New() string {
	var out [Length]byte
	buf := make([]byte, Length*2)
	n := 0
	for n < Length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("id: read random: %v", err))
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 below 256; rejecting above it keeps the draw uniform.
			if b >= 248 {
				continue
			}
			out[n] = alphabet[int(b)%len(alphabet)]
			n++
			if n == Length {
				break
			}
		}
	}
	return string(out[:])
}

// Valid reports whether s has the shape of a record id.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// FormatOccurrenceID returns a composite id like "tplid:3".
func FormatOccurrenceID(templateID string, index int) string {
	return templateID + occurrenceSep + strconv.Itoa(index)
}

// ParseOccurrenceID splits "tplid:3" into the template id and index.
// ok is false for plain record ids.
func ParseOccurrenceID(s string) (templateID string, index int, ok bool, err error) {
	i := strings.LastIndex(s, occurrenceSep)
	if i < 0 {
		return s, 0, false, nil
	}
	templateID = s[:i]
	if templateID == "" {
		return "", 0, false, fmt.Errorf("invalid occurrence ID format: %q", s)
	}
	index, err = strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid index in occurrence ID %q: %w", s, err)
	}
	if index < 0 {
		return "", 0, false, fmt.Errorf("negative index in occurrence ID %q", s)
	}
	return templateID, index, true, nil
}

// TemplateOf strips the occurrence suffix from a composite id.
// "tplid:3" -> "tplid"
func TemplateOf(s string) string {
	if i := strings.LastIndex(s, occurrenceSep); i >= 0 {
		return s[:i]
	}
	return s
}
