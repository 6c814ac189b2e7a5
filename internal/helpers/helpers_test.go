package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripHTMLToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "just text", "just text"},
		{"paragraphs", "<p>Hot</p><p>stone  bibimbap</p>", "Hot stone bibimbap"},
		{"entities", "<b>Fish &amp; chips</b>", "Fish & chips"},
		{"script dropped", "<p>ok</p><script>alert(1)</script><style>p{}</style>", "ok"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripHTMLToText(tc.input))
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short", 20))
	assert.Equal(t, "anything", Excerpt("anything", 0))
	assert.Equal(t, "the quick brown...", Excerpt("the quick brown fox jumps", 20))
	assert.Equal(t, "비빔밥...", Excerpt("비빔밥비빔밥비빔밥", 6))
	assert.Equal(t, "ab", Excerpt("abcdef", 2))
}

func TestFormatAPITime(t *testing.T) {
	assert.Equal(t, "2023-02-22 10:05", FormatAPITime("2023-02-22T10:05:00.000000Z", time.UTC))
	assert.Equal(t, "2023-02-22 19:05", FormatAPITime("2023-02-22T10:05:00.000000Z", time.FixedZone("KST", 9*3600)))
	assert.Equal(t, "yesterday", FormatAPITime("yesterday", time.UTC))

	_, ok := ParseAPITime("2023-02-22 10:05:00")
	assert.True(t, ok)
}
