package store

import (
	"regexp"
	"strings"
	"unicode"
)

// wordRegex matches alphanumeric runs (including underscores) as the first
// pass of chunk-text tokenization, before identifier splitting.
var wordRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeChunkText splits a chunk's text into lowercased terms for the
// chunks_fts index and for BM25 queries against it. Sources are prose, but
// ingested markdown/web/VCS-history content routinely embeds identifiers in
// fenced code blocks and diffs, so camelCase and snake_case splitting still
// pays off: "parseHTTPRequest" indexes as "parse", "http", "request" rather
// than one opaque token a query would never match. Tokens shorter than two
// characters are dropped.
func TokenizeChunkText(text string) []string {
	var tokens []string

	words := wordRegex.FindAllString(text, -1)

	for _, word := range words {
		for _, t := range SplitCompoundToken(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// SplitCompoundToken splits one word into its snake_case and/or camelCase
// parts, e.g. "get_UserById" -> ["get", "User", "By", "Id"].
func SplitCompoundToken(token string) []string {
	var result []string

	if strings.Contains(token, "_") {
		parts := strings.Split(token, "_")
		for _, part := range parts {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}

	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	// Empty slice, not nil, so callers can range over the result unconditionally.
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split on a case boundary, or before the last letter of an acronym
			// that runs into a new word (e.g. "HTTPHandler" -> "HTTP", "Handler").
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterStopWords removes stopWords from tokens, case-insensitively.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		lower := strings.ToLower(token)
		if _, isStop := stopWords[lower]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts DefaultStopWords (or a caller-supplied list)
// into a lookup set for FilterStopWords.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
