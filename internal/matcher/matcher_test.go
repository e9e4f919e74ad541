package matcher

import (
	"errors"
	"sync"
	"testing"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		kind    Kind
		pattern string
		want    bool
	}{
		{"regex unanchored", "my-Flock-cam", KindRegex, "Flock", true},
		{"regex anchored miss", "my-Flock-cam", KindRegex, "^Flock", false},
		{"regex case flag", "FLOCK_12", KindRegex, "(?i)^flock[-_ ]?", true},
		{"regex invalid never matches", "x", KindRegex, "(", false},

		{"prefix colon", "58:8E:81:12:34:56", KindPrefix, "58:8E:81", true},
		{"prefix mixed separators", "58-8e-81-12-34-56", KindPrefix, "58:8E:81", true},
		{"prefix compact pattern", "58:8E:81:12:34:56", KindPrefix, "588E81", true},
		{"prefix compact value", "588e81123456", KindPrefix, "58-8E", true},
		{"prefix dotted value", "588e.8112.3456", KindPrefix, "58:8E:81", true},
		{"prefix miss", "AA:BB:CC:00:11:22", KindPrefix, "58:8E:81", false},
		{"prefix partial byte value", "58:8", KindPrefix, "58:8E", false},
		{"prefix non-hex value", "not-a-mac", KindPrefix, "58", false},

		{"range inside", "2437", KindRange, "2400-2500", true},
		{"range inclusive low", "2400", KindRange, "2400-2500", true},
		{"range inclusive high", "2500", KindRange, "2400-2500", true},
		{"range outside", "5180", KindRange, "2400-2500", false},
		{"range negative", "-60", KindRange, "-90--40", true},
		{"range decimal", "1575.42", KindRange, "1575-1576", true},
		{"range non-numeric", "abc", KindRange, "1-2", false},

		{"token equal fold", "tile", KindToken, "Tile", true},
		{"token no substring", "Tile Mate", KindToken, "Tile", false},

		{"regex non-ascii", "Straße-7", KindRegex, "(?i)straße", true},
		{"regex simple folding only", "STRASSE", KindRegex, "(?i)straße", false},
		{"regex accented fold", "CAFÉ-Gäste", KindRegex, "(?i)^café", true},
		{"regex dot is one rune", "日本語x", KindRegex, "^.{4}$", true},
		{"regex emoji ssid", "Cam📷01", KindRegex, "📷", true},
		{"token unicode fold", "ÜBERWACHUNG", KindToken, "überwachung", true},
		{"prefix multibyte value", "58:8E:81:ü", KindPrefix, "58:8E:81", false},

		{"unknown kind", "x", Kind("glob"), "x", false},
		{"empty pattern", "x", KindToken, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.value, tt.kind, tt.pattern); got != tt.want {
				t.Errorf("Matches(%q, %s, %q) = %v, want %v", tt.value, tt.kind, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		pattern string
		want    error
	}{
		{"empty", KindRegex, "", ErrEmptyPattern},
		{"prefix too long", KindPrefix, "AA:BB:CC:DD", ErrBadPrefix},
		{"prefix not hex", KindPrefix, "ZZ", ErrBadPrefix},
		{"prefix odd nibble", KindPrefix, "ABC", ErrBadPrefix},
		{"range shape", KindRange, "10", ErrBadRange},
		{"range inverted", KindRange, "10-5", ErrInvertedRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.kind, tt.pattern)
			if !errors.Is(err, tt.want) {
				t.Errorf("Compile(%s, %q) error = %v, want %v", tt.kind, tt.pattern, err, tt.want)
			}
		})
	}

	if _, err := Compile(KindRegex, "(["); err == nil {
		t.Error("Compile(regex, \"([\") should fail")
	}
	if _, err := Compile(Kind("glob"), "x"); err == nil {
		t.Error("Compile with unknown kind should fail")
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"58:8e:81:12:34:56", "58:8E:81:12:34:56", true},
		{"58-8E-81", "58:8E:81", true},
		{"588E81", "58:8E:81", true},
		{"58 8E", "58:8E", true},
		{"", "", false},
		{"5", "", false},
		{"GG:00", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeAddress(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeAddress(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{float64(2437), "2437"},
		{1575.42, "1575.42"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint8(3), "3"},
		{true, "true"},
		{[]byte("raw"), "raw"},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCache(t *testing.T) {
	c := NewCache(2)

	p1, err := c.Get(KindRegex, "a+")
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := c.Get(KindRegex, "a+")
	if p1 != p2 {
		t.Error("second Get should return the cached pattern")
	}

	// Same source, different kind, is a different entry.
	if _, err := c.Get(KindToken, "a+"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	if _, err := c.Get(KindRegex, "("); err == nil {
		t.Error("expected compile error")
	}
	if c.Len() != 2 {
		t.Errorf("failed compile was cached, Len = %d", c.Len())
	}

	c.Get(KindRange, "1-2")
	if c.Len() != 2 {
		t.Errorf("Len = %d after eviction, want 2", c.Len())
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Purge", c.Len())
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache(16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p, err := c.Get(KindRegex, "(?i)flock")
				if err != nil || !p.Match("FLOCK") {
					t.Error("concurrent Get failed")
					return
				}
			}
		}()
	}
	wg.Wait()
}
