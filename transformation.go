// transformation.go: Parsing and matching of algorithm/mode/padding specifiers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Transformation is a parsed "ALGORITHM[/MODE[/PADDING]]" specifier.
//
// The algorithm keeps the caller's spelling for display and is matched
// case-insensitively. Mode and padding are optional. A Transformation is a
// value type and never changes after ParseTransformation returns it.
type Transformation struct {
	algorithm string
	mode      string
	padding   string
}

// ParseTransformation parses a specifier such as "AES/GCM/NoPadding",
// "DESede/CBC/PKCS5Padding" or "HmacSHA256".
//
// The specifier is split on '/' and must contain one to three non-empty
// segments. Any other shape fails with ErrInvalidTransformation.
//
// Example:
//
//	t, err := crypto.ParseTransformation("AES/CBC/PKCS5Padding")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(t.Algorithm(), t.Mode(), t.Padding()) // AES CBC PKCS5Padding
func ParseTransformation(spec string) (Transformation, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Transformation{}, newError(ErrInvalidTransformation, ErrCodeInvalidTransformation, "transformation cannot be empty")
	}

	parts := strings.Split(spec, "/")
	if len(parts) > 3 {
		return Transformation{}, newError(ErrInvalidTransformation, ErrCodeInvalidTransformation,
			fmt.Sprintf("transformation %q has %d segments, expected at most 3", spec, len(parts)))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Transformation{}, newError(ErrInvalidTransformation, ErrCodeInvalidTransformation,
				fmt.Sprintf("transformation %q has an empty segment", spec))
		}
	}

	t := Transformation{algorithm: parts[0]}
	if len(parts) > 1 {
		t.mode = parts[1]
	}
	if len(parts) > 2 {
		t.padding = parts[2]
	}
	return t, nil
}

// MustParseTransformation is like ParseTransformation but panics on error.
// It is intended for package-level variables with constant specifiers.
func MustParseTransformation(spec string) Transformation {
	t, err := ParseTransformation(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Algorithm returns the algorithm segment as written by the caller.
func (t Transformation) Algorithm() string { return t.algorithm }

// Mode returns the mode segment, or "" when absent.
func (t Transformation) Mode() string { return t.mode }

// Padding returns the padding segment, or "" when absent.
func (t Transformation) Padding() string { return t.padding }

// HasMode reports whether a mode segment is present.
func (t Transformation) HasMode() bool { return t.mode != "" }

// IsZero reports whether t is the zero Transformation.
func (t Transformation) IsZero() bool { return t.algorithm == "" }

// String renders the specifier with only the segments that are present.
func (t Transformation) String() string {
	var b strings.Builder
	b.WriteString(t.algorithm)
	if t.mode != "" {
		b.WriteByte('/')
		b.WriteString(t.mode)
		if t.padding != "" {
			b.WriteByte('/')
			b.WriteString(t.padding)
		}
	}
	return b.String()
}

// IsAlgorithm reports whether the algorithm equals name, ignoring case.
func (t Transformation) IsAlgorithm(name string) bool {
	return strings.EqualFold(t.algorithm, name)
}

// IsPadding reports whether the padding equals name, ignoring case.
func (t Transformation) IsPadding(name string) bool {
	return strings.EqualFold(t.padding, name)
}

// IsMode reports whether the mode matches any of the patterns.
//
// A pattern matches when it equals the mode ignoring case, or when it is a
// regular expression that matches the whole mode ignoring case. This lets one
// call cover a family such as "CFB\\d*" (CFB, CFB8, CFB128).
// A Transformation without a mode never matches.
func (t Transformation) IsMode(patterns ...string) bool {
	if t.mode == "" {
		return false
	}
	for _, p := range patterns {
		if strings.EqualFold(t.mode, p) {
			return true
		}
		if re := modePattern(p); re != nil && re.MatchString(t.mode) {
			return true
		}
	}
	return false
}

var (
	modePatternMu    sync.RWMutex
	modePatternCache = make(map[string]*regexp.Regexp)
)

// modePattern compiles p as an anchored, case-insensitive expression.
// Invalid expressions are cached as nil so they are only tried once.
func modePattern(p string) *regexp.Regexp {
	modePatternMu.RLock()
	re, ok := modePatternCache[p]
	modePatternMu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("(?i)^(?:" + p + ")$")
	if err != nil {
		re = nil
	}

	modePatternMu.Lock()
	modePatternCache[p] = re
	modePatternMu.Unlock()
	return re
}
