package domain_test

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

func TestTruncateQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		id       string
		maxLen   int
		want     string
	}{
		{"short kept", "BTC up?", "0x1", 20, "BTC up?"},
		{"ascii cut", "Will Bitcoin be above $97,000?", "0x1", 10, "Will Bi..."},
		{"multibyte cut on rune", "¿Bitcoin sube más de €90.000 en 15 min?", "0x1", 12, "¿Bitcoin ..."},
		{"emoji kept whole", "🚀🚀🚀🚀🚀🚀", "0x1", 5, "🚀🚀..."},
		{"id fallback", "", "0x1234567890abcdef1234567890abcdef", 60, "0x1234567890abcdef12..."},
		{"short id fallback", "", "0xabc", 60, "0xabc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.TruncateQuestion(tc.question, tc.id, tc.maxLen)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, utf8.RuneCountInString(got), tc.maxLen)
		})
	}
}
