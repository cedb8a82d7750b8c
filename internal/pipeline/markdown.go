package pipeline

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const fence = "```"

// formatMarkdown removes the ```markdown and ```html wrappers models put
// around their answer and any bare fence markers, while keeping fenced
// blocks in other languages intact.
func formatMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for {
		i := strings.Index(text, fence)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		rest := text[i:]

		if lang := fenceLanguage(rest[len(fence):]); lang != "" && !isWrapperLanguage(lang) {
			end := strings.Index(rest[len(fence)+len(lang):], fence)
			if end >= 0 {
				n := len(fence) + len(lang) + end + len(fence)
				b.WriteString(rest[:n])
				text = rest[n:]
				continue
			}
		}
		text = rest[len(wrapperMarker(rest)):]
	}
}

// wrapperMarker returns the fence prefix of s that should be dropped.
func wrapperMarker(s string) string {
	for _, m := range []string{"```html", "```markdown", "````html", "````markdown"} {
		if strings.HasPrefix(s, m) {
			return m
		}
	}
	return fence
}

func fenceLanguage(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return r != '_' && !isASCIIAlnum(r)
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

func isWrapperLanguage(lang string) bool {
	return strings.HasPrefix(lang, "html") || strings.HasPrefix(lang, "markdown")
}

func isASCIIAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

var (
	nonWordChars = regexp.MustCompile(`[^\w\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

const maxFileNameLen = 255

// fileName derives the output file stem from a path or URL: the base name
// up to its first dot, stripped of punctuation, whitespace runs turned
// into underscores, lowercased.
func fileName(source string) string {
	base := filepath.Base(source)
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		base = path.Base(u.Path)
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}

	name := nonWordChars.ReplaceAllString(base, "")
	name = whitespace.ReplaceAllString(name, "_")
	name = strings.ToLower(name)
	if len(name) > maxFileNameLen {
		name = name[:maxFileNameLen]
	}
	return name
}
