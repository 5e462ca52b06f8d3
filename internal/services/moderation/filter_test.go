package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	f := NewDefault()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain word", "oh shit", "oh ****"},
		{"case insensitive", "SHIT happens", "**** happens"},
		{"suffix uses root length", "that was shitty", "that was ****"},
		{"several roots", "wtf is this shit", "*** is this ****"},
		{"word boundary only", "bullshit", "bullshit"},
		{"punctuation boundary", "shit!", "****!"},
		{"clean text untouched", "hello there", "hello there"},
		{"empty", "", ""},
		{"unicode suffix", "shitté alors", "**** alors"},
		{"unicode prefix is part of the word", "éshit", "éshit"},
		{"adjacent words", "shit,shit shit", "****,**** ****"},
		{"digit prefix", "2shit", "2shit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.Apply(tc.in))
		})
	}
}

func TestNewSkipsBlankRoots(t *testing.T) {
	f := New([]string{"", "  ", "darn"})
	assert.Equal(t, "**** it", f.Apply("darnit it"))
}

func TestNewQuotesRoots(t *testing.T) {
	f := New([]string{"a.b"})
	assert.Equal(t, "axb", f.Apply("axb"))
	assert.Equal(t, "***", f.Apply("a.b"))
}
