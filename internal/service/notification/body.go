package notification

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	gmail_repo "github.com/huavcjj/mailbridge/internal/domain/gmail"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeBody returns the readable text of a message: the payload body when
// present, otherwise the first text/plain part, otherwise the first
// text/html part.
func decodeBody(msg *gmail_repo.Message) (string, error) {
	if msg == nil || msg.Payload == nil {
		return "", nil
	}

	part := msg.Payload
	if part.BodyData == "" {
		part = findPart(msg.Payload, "text/plain")
		if part == nil {
			part = findPart(msg.Payload, "text/html")
		}
		if part == nil {
			return "", nil
		}
	}

	raw, err := decodeBase64(part.BodyData)
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}
	return toUTF8(raw, partCharset(part)), nil
}

func findPart(p *gmail_repo.Part, mimeType string) *gmail_repo.Part {
	if p == nil {
		return nil
	}
	if strings.EqualFold(p.MimeType, mimeType) && p.BodyData != "" {
		return p
	}
	for _, child := range p.Parts {
		if found := findPart(child, mimeType); found != nil {
			return found
		}
	}
	return nil
}

// decodeBase64 accepts the web-safe alphabet Gmail uses, padded or not, and
// falls back to the standard alphabet.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func partCharset(p *gmail_repo.Part) string {
	for _, h := range p.Headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return params["charset"]
	}
	return ""
}

func toUTF8(raw []byte, charset string) string {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return string(raw)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// splitText cuts text into chunks of at most max runes. max <= 0 disables
// splitting.
func splitText(text string, max int) []string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := max
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
