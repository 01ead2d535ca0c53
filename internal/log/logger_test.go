package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewParsesLevels(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := New(c.in).GetLevel(); got != c.want {
			t.Errorf("New(%q) level = %v, want %v", c.in, got, c.want)
		}
	}
}
