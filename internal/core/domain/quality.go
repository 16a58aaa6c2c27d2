package domain

import "strings"

// Quality is an ordered video quality tier. Higher values rank higher.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityCAM
	QualityHDCAM
	QualityHDTS
	QualitySD
	QualityDVD
	QualityDVDScr
	QualityWEB
	Quality480p
	Quality720p
	Quality1080p
	// Quality4K is recognized only so it can be excluded.
	Quality4K
)

var qualityNames = map[Quality]string{
	QualityUnknown: "unknown",
	QualityCAM:     "CAM",
	QualityHDCAM:   "HDCAM",
	QualityHDTS:    "HDTS",
	QualitySD:      "SD",
	QualityDVD:     "DVD",
	QualityDVDScr:  "DVDScr",
	QualityWEB:     "WEB",
	Quality480p:    "480p",
	Quality720p:    "720p",
	Quality1080p:   "1080p",
	Quality4K:      "4K",
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

func (q Quality) Excluded() bool {
	return q == Quality4K
}

// titleMarkers is checked in order; the first marker found in a title wins.
var titleMarkers = []struct {
	markers []string
	quality Quality
}{
	{[]string{"2160p", "4k", "uhd"}, Quality4K},
	{[]string{"1080p"}, Quality1080p},
	{[]string{"720p"}, Quality720p},
	{[]string{"480p"}, Quality480p},
	{[]string{"dvdscr", "dvd-scr"}, QualityDVDScr},
	{[]string{"dvd"}, QualityDVD},
	{[]string{"hdts", "hd-ts"}, QualityHDTS},
	{[]string{"hdcam", "hd-cam"}, QualityHDCAM},
	{[]string{"camrip", "cam"}, QualityCAM},
	{[]string{"webrip", "web-dl", "web"}, QualityWEB},
}

// QualityFromTitle derives a tier from release title markers, defaulting to SD.
func QualityFromTitle(title string) Quality {
	lower := strings.ToLower(title)
	for _, m := range titleMarkers {
		for _, marker := range m.markers {
			if strings.Contains(lower, marker) {
				return m.quality
			}
		}
	}
	return QualitySD
}

// ParseQualityLabel maps an authoritative label such as "1080p" or "WEB".
// Labels it does not know are classified by title markers.
func ParseQualityLabel(label string) Quality {
	trimmed := strings.TrimSpace(label)
	for q, name := range qualityNames {
		if q != QualityUnknown && strings.EqualFold(name, trimmed) {
			return q
		}
	}
	return QualityFromTitle(trimmed)
}
