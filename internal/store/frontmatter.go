package store

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// encodeFrontmatter renders a markdown document with a YAML header
// block followed by the body.
func encodeFrontmatter(meta any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing frontmatter encoder: %w", err)
	}
	buf.WriteString(frontmatterDelim + "\n\n")
	buf.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// decodeFrontmatter splits a markdown document into its YAML header
// and body. Documents without a header decode into the zero meta
// with the full text as body.
func decodeFrontmatter(data []byte, meta any) (string, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelim+"\n") {
		return text, nil
	}
	rest := text[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return text, nil
	}
	header := rest[:end+1]
	body := rest[end+1+len(frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	if err := yaml.Unmarshal([]byte(header), meta); err != nil {
		return "", fmt.Errorf("decoding frontmatter: %w", err)
	}
	return body, nil
}
