package vault

import (
	"bytes"
	"errors"
	"strings"
)

const frontmatterDelim = "---"

var (
	// ErrNoFrontmatter is returned when a record does not open with a header block.
	ErrNoFrontmatter = errors.New("missing frontmatter")
	// ErrUnterminatedFrontmatter is returned when the header block never closes.
	ErrUnterminatedFrontmatter = errors.New("unterminated frontmatter")
)

// SplitFrontmatter separates a "---" delimited YAML header from the body.
// CRLF line endings are normalized first.
func SplitFrontmatter(s string) (head, body string, err error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.HasPrefix(s, frontmatterDelim+"\n") {
		return "", "", ErrNoFrontmatter
	}
	rest := s[len(frontmatterDelim)+1:]

	end := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+frontmatterDelim) {
			return rest[:len(rest)-len(frontmatterDelim)-1], "", nil
		}
		return "", "", ErrUnterminatedFrontmatter
	}
	return rest[:end], rest[end+len(frontmatterDelim)+2:], nil
}

// JoinFrontmatter renders a header (already YAML encoded) and body as one record.
func JoinFrontmatter(head []byte, body string) []byte {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(head)
	if len(head) > 0 && head[len(head)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(frontmatterDelim + "\n")
	buf.WriteString(body)
	return buf.Bytes()
}
