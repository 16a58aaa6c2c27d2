package extractor

import (
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
)

// mediaExtensions is ordered by preference.
var mediaExtensions = []string{".mp4", ".mkv", ".avi", ".m3u8", ".webm"}

func IsMediaURL(u string) bool {
	lower := strings.ToLower(u)
	for _, ext := range mediaExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// PickMediaURL drops decoys and returns the URL with the most preferred extension.
// Among URLs of equal preference the first observed wins.
func PickMediaURL(urls []string) string {
	var kept []string
	for _, u := range urls {
		if u != "" && !domain.IsBlockedLocator(u) {
			kept = append(kept, u)
		}
	}
	for _, ext := range mediaExtensions {
		for _, u := range kept {
			if strings.Contains(strings.ToLower(u), ext) {
				return u
			}
		}
	}
	if len(kept) > 0 {
		return kept[0]
	}
	return ""
}
