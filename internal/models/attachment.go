package models

import (
	"fmt"
	"strconv"
	"strings"
)

// FileAttachment describes an uploaded file referenced from message
// content. The upload service produces these fields; the chat server only
// shuttles the encoded tag around as plain text.
type FileAttachment struct {
	URL      string
	Name     string
	MimeType string
	Size     int64
}

const (
	fileTagPrefix = "[[file:"
	fileTagSuffix = "]]"
)

// Tag encodes the attachment as the content-layer convention
// [[file:<url>|<name>|<mimeType>|<size>]].
func (a FileAttachment) Tag() string {
	return fmt.Sprintf("%s%s|%s|%s|%d%s", fileTagPrefix, a.URL, a.Name, a.MimeType, a.Size, fileTagSuffix)
}

// ParseFileTag decodes a file attachment tag. It returns false when the
// content is not a well-formed tag, in which case the content is treated
// as ordinary text.
func ParseFileTag(content string) (FileAttachment, bool) {
	if !strings.HasPrefix(content, fileTagPrefix) || !strings.HasSuffix(content, fileTagSuffix) {
		return FileAttachment{}, false
	}
	inner := content[len(fileTagPrefix) : len(content)-len(fileTagSuffix)]
	parts := strings.Split(inner, "|")
	if len(parts) != 4 || parts[0] == "" {
		return FileAttachment{}, false
	}
	size, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || size < 0 {
		return FileAttachment{}, false
	}
	return FileAttachment{URL: parts[0], Name: parts[1], MimeType: parts[2], Size: size}, true
}
