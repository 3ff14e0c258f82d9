package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownConverter_Run(t *testing.T) {
	converter := NewMarkdownConverter()

	got, err := converter.Run(`<h1>Title</h1><p>Some <strong>bold</strong> text with a <a href="https://example.com">link</a>.</p><ul><li>one</li><li>two</li></ul>`)
	require.NoError(t, err)

	assert.Contains(t, got, "# Title")
	assert.Contains(t, got, "**bold**")
	assert.Contains(t, got, "[link](https://example.com)")
	assert.Contains(t, got, "- one")
}

func TestMarkdownConverter_StrikethroughPlugin(t *testing.T) {
	got, err := NewMarkdownConverter().Run(`<p><del>gone</del></p>`)
	require.NoError(t, err)
	assert.Contains(t, got, "~gone~")
}

func TestCleanMarkdown(t *testing.T) {
	in := "  \nfirst   \n\n\n\n\nsecond\t\n\n"
	assert.Equal(t, "first\n\nsecond", cleanMarkdown(in))
}
