package utils

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// SanitizeFileName collapses everything but letters and digits into underscores.
func SanitizeFileName(name string) string {
	cleaned := strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

func IsValidLink(text string) bool {
	parsedURL, err := url.ParseRequestURI(text)
	if err != nil {
		return false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	return parsedURL.Host != ""
}

// Origin returns scheme://host of a URL, or "" when it cannot be parsed.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// ExtensionOf returns the lower-cased file extension of a URL path, without query.
func ExtensionOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
