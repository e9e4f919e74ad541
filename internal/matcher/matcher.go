// Package matcher evaluates one observed value against one literal pattern.
// Patterns are compiled once and cached; evaluation never fails, a value that
// cannot be interpreted for the pattern's kind simply does not match.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind selects the matching semantics of a literal pattern.
type Kind string

const (
	// KindRegex finds the pattern anywhere in the value unless it anchors itself.
	KindRegex Kind = "regex"
	// KindPrefix compares leading byte groups of a hardware address.
	KindPrefix Kind = "prefix"
	// KindRange tests a number against an inclusive "low-high" interval.
	KindRange Kind = "range"
	// KindToken is case-insensitive exact equality.
	KindToken Kind = "token"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRegex, KindPrefix, KindRange, KindToken:
		return true
	}
	return false
}

var (
	ErrEmptyPattern  = errors.New("pattern is empty")
	ErrBadPrefix     = errors.New("prefix must be 1 to 3 hex byte groups, e.g. AA:BB:CC")
	ErrBadRange      = errors.New(`range must have the form "low-high"`)
	ErrInvertedRange = errors.New("range low bound exceeds high bound")
)

var (
	prefixFormat  = regexp.MustCompile(`^[0-9A-Fa-f]{2}([:-][0-9A-Fa-f]{2}){0,2}$`)
	compactPrefix = regexp.MustCompile(`^([0-9A-Fa-f]{2}){1,3}$`)
	rangeFormat   = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*-\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// Pattern is a compiled literal pattern.
type Pattern struct {
	kind   Kind
	raw    string
	re     *regexp.Regexp
	prefix string
	low    float64
	high   float64
}

// Kind returns the pattern kind.
func (p *Pattern) Kind() Kind { return p.kind }

// String returns the pattern source.
func (p *Pattern) String() string { return p.raw }

// Compile validates and compiles a pattern of the given kind.
func Compile(kind Kind, pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	p := &Pattern{kind: kind, raw: pattern}
	switch kind {
	case KindRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.re = re
	case KindPrefix:
		trimmed := strings.TrimSpace(pattern)
		if !prefixFormat.MatchString(trimmed) && !compactPrefix.MatchString(trimmed) {
			return nil, ErrBadPrefix
		}
		norm, ok := NormalizeAddress(trimmed)
		if !ok {
			return nil, ErrBadPrefix
		}
		p.prefix = norm
	case KindRange:
		low, high, err := ParseRange(pattern)
		if err != nil {
			return nil, err
		}
		p.low, p.high = low, high
	case KindToken:
		// nothing to precompute
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", kind)
	}
	return p, nil
}

// Match reports whether value satisfies the pattern.
func (p *Pattern) Match(value string) bool {
	switch p.kind {
	case KindRegex:
		return p.re.MatchString(value)
	case KindPrefix:
		norm, ok := NormalizeAddress(value)
		if !ok {
			return false
		}
		return strings.HasPrefix(norm, p.prefix)
	case KindRange:
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return false
		}
		return p.low <= n && n <= p.high
	case KindToken:
		return strings.EqualFold(value, p.raw)
	}
	return false
}

// Matches compiles (through the shared cache) and evaluates a pattern.
// An uncompilable pattern never matches.
func Matches(value string, kind Kind, pattern string) bool {
	p, err := defaultCache.Get(kind, pattern)
	if err != nil {
		return false
	}
	return p.Match(value)
}

// ParseRange parses a "low-high" interval. Negative bounds are allowed,
// e.g. "-90--40".
func ParseRange(s string) (low, high float64, err error) {
	m := rangeFormat.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, ErrBadRange
	}
	low, err = strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, ErrBadRange
	}
	high, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, ErrBadRange
	}
	if low > high {
		return 0, 0, ErrInvertedRange
	}
	return low, high, nil
}

// NormalizeAddress converts a hardware address to uppercase colon-separated
// byte groups. Colons, dashes, dots and spaces are accepted as separators,
// or none at all. It returns false for non-hex input or a dangling nibble.
func NormalizeAddress(addr string) (string, bool) {
	var hex strings.Builder
	hex.Grow(len(addr))
	for _, r := range addr {
		switch {
		case r == ':' || r == '-' || r == '.' || r == ' ':
			continue
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			hex.WriteRune(r)
		default:
			return "", false
		}
	}
	digits := strings.ToUpper(hex.String())
	if digits == "" || len(digits)%2 != 0 {
		return "", false
	}
	var out strings.Builder
	out.Grow(len(digits) + len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		if i > 0 {
			out.WriteByte(':')
		}
		out.WriteString(digits[i : i+2])
	}
	return out.String(), true
}

// Stringify renders an observed scalar the way literal patterns see it.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprintf("%v", v)
}
