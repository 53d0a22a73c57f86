package timecode

import (
	"errors"
	"testing"
)

func TestParseAbsolute_Valid(t *testing.T) {
	cases := map[string]int{
		"45":        45,
		"2:30":      150,
		"1:23:45":   5025,
		" 1 : 05 ":  65,
		"0:00:00":   0,
		"10:59:59":  39599,
		"125":       125,
		"00:07":     7,
		"100:00":    6000,
		"2:00:00":   7200,
		"0:59":      59,
		"3:04:05  ": 11045,
	}
	for in, want := range cases {
		got, err := ParseAbsolute(in)
		if err != nil {
			t.Errorf("ParseAbsolute(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAbsolute(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseAbsolute_AllInRangeComponents(t *testing.T) {
	for h := 0; h < 3; h++ {
		for m := 0; m < 60; m += 7 {
			for s := 0; s < 60; s += 11 {
				in := Format(float64(h*3600 + m*60 + s))
				if h == 0 {
					in = "0:" + in
				}
				got, err := ParseAbsolute(in)
				if err != nil {
					t.Fatalf("ParseAbsolute(%q): %v", in, err)
				}
				if want := h*3600 + m*60 + s; got != want {
					t.Fatalf("ParseAbsolute(%q) = %d, want %d", in, got, want)
				}
			}
		}
	}
}

func TestParseAbsolute_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"abc",
		"1:60",
		"1:60:00",
		"1:00:60",
		"-1:30",
		"1:-30",
		"1:2:3:4",
		"1::2",
		"1:2x",
		":30",
		"9000000000000000:00:00",
		"200000000000000000:00",
	} {
		if _, err := ParseAbsolute(in); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ParseAbsolute(%q): got err %v, want ErrInvalidFormat", in, err)
		}
	}
}

func TestParseAbsoluteLenient(t *testing.T) {
	cases := map[string]int{
		"":        0,
		"123":     123,
		"2:33":    153,
		"1:23:45": 5025,
		"abc":     0,
		"2:xx":    120,
		"1:2:3:4": 0,
		"-5":      0,
		"1:-5":    60,
		"12abc":   12,
		" 7":      7,
		"1:30:":   5400,
		"::":      0,
		"2:3.9":   123,
		// Totals that overflow an int are unreadable.
		"9000000000000000:00:00": 0,
	}
	for in, want := range cases {
		if got := ParseAbsoluteLenient(in); got != want {
			t.Errorf("ParseAbsoluteLenient(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseRelative_Valid(t *testing.T) {
	cases := map[string]int{
		"1h 5m 30s":   3930,
		"90s":         90,
		"90":          90,
		"2m":          120,
		"1h 5m":       3900,
		"1M 30S":      90,
		"  1m   30s ": 90,
		"1h":          3600,
		"1m30s":       90,
	}
	for in, want := range cases {
		got, err := ParseRelative(in)
		if err != nil {
			t.Errorf("ParseRelative(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseRelative(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseRelative_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "0", "0s", "0m 0s", "xyz s", "9000000000000000h", "99999999999999999999s", "3000000000000000h 1000m"} {
		if _, err := ParseRelative(in); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ParseRelative(%q): got err %v, want ErrInvalidFormat", in, err)
		}
	}
}

func TestParseRelativeLenient(t *testing.T) {
	cases := map[string]int{
		"":                  0,
		"1m 30s":            90,
		"45":                45,
		"about 20":          20,
		"1h 5m 30s":         3930,
		"nothing":           0,
		"9000000000000000h": 0,
	}
	for in, want := range cases {
		if got := ParseRelativeLenient(in); got != want {
			t.Errorf("ParseRelativeLenient(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := map[float64]string{
		0:     "0:00",
		5:     "0:05",
		65:    "1:05",
		599.9: "9:59",
		3600:  "1:00:00",
		3930:  "1:05:30",
		-3:    "0:00",
		36061: "10:01:01",
	}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Errorf("Format(%v) = %q, want %q", in, got, want)
		}
	}
}
