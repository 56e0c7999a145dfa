package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileTagRoundTrip(t *testing.T) {
	attachment := FileAttachment{
		URL:      "https://cdn.example.org/uploads/report.pdf",
		Name:     "report.pdf",
		MimeType: "application/pdf",
		Size:     48213,
	}

	tag := attachment.Tag()
	require.Equal(t, "[[file:https://cdn.example.org/uploads/report.pdf|report.pdf|application/pdf|48213]]", tag)

	parsed, ok := ParseFileTag(tag)
	require.True(t, ok)
	require.Equal(t, attachment, parsed)
}

func TestParseFileTagRejectsMalformedContent(t *testing.T) {
	cases := []string{
		"",
		"just some text",
		"https://example.org/image.png",
		"[[file:]]",
		"[[file:url|name|mime]]",
		"[[file:url|name|mime|notanumber]]",
		"[[file:url|name|mime|-3]]",
		"[[file:url|name|mime|12",
	}
	for _, content := range cases {
		_, ok := ParseFileTag(content)
		require.False(t, ok, "content %q should not parse", content)
	}
}

func TestTombstonedMasksDeletedContent(t *testing.T) {
	msg := Message{ID: "m1", Content: "secret"}
	require.Equal(t, "secret", msg.Tombstoned().Content)

	deletedAt := msg.CreatedAt
	msg.DeletedAt = &deletedAt
	masked := msg.Tombstoned()
	require.Equal(t, Tombstone, masked.Content)
	require.Equal(t, "m1", masked.ID, "deleted messages stay addressable")
}
