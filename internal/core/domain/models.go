package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mozillazg/go-unidecode"
)

type Kind string

const (
	KindStream  Kind = "stream"
	KindTorrent Kind = "torrent"
)

// SourceDescriptor identifies a content source. Mirrors are tried in order.
type SourceDescriptor struct {
	Name            string
	Mirrors         []string
	RequiresBrowser bool
	BehindBotWall   bool
}

type SearchQuery struct {
	Title string
	Year  int
}

var trailingYear = regexp.MustCompile(`^(.*?)[\s._-]*\(?((?:19|20)\d{2})\)?$`)

// NewSearchQuery trims the raw title and splits off a trailing year hint.
func NewSearchQuery(raw string) SearchQuery {
	title := strings.Join(strings.Fields(raw), " ")
	if m := trailingYear.FindStringSubmatch(title); m != nil && strings.TrimSpace(m[1]) != "" {
		year, _ := strconv.Atoi(m[2])
		return SearchQuery{Title: strings.TrimSpace(m[1]), Year: year}
	}
	return SearchQuery{Title: title}
}

func (q SearchQuery) String() string {
	if q.Year > 0 {
		return q.Title + " " + strconv.Itoa(q.Year)
	}
	return q.Title
}

// Variants returns the search strings to try, most specific first, without duplicates.
// Titles with non-ASCII letters get a transliterated copy after the original forms.
func (q SearchQuery) Variants() []string {
	candidates := titleForms(q.Title, q.Year)
	if ascii := strings.TrimSpace(unidecode.Unidecode(q.Title)); ascii != "" {
		candidates = append(candidates, titleForms(ascii, q.Year)...)
	}
	seen := make(map[string]bool, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, v := range candidates {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		variants = append(variants, v)
	}
	return variants
}

func titleForms(title string, year int) []string {
	forms := []string{title, strings.ToLower(title)}
	if year > 0 {
		forms = append([]string{title + " " + strconv.Itoa(year)}, forms...)
	}
	return forms
}

// Candidate is a located piece of content. It is never mutated after creation.
type Candidate struct {
	Source     string  `json:"source"`
	Locator    string  `json:"locator"`
	Kind       Kind    `json:"kind"`
	Quality    Quality `json:"quality"`
	Size       string  `json:"size,omitempty"`
	Seeds      int     `json:"seeds"`
	Blocked    bool    `json:"blocked"`
	Title      string  `json:"title,omitempty"`
	InfoHash   string  `json:"info_hash,omitempty"`
	TorrentURL string  `json:"torrent_url,omitempty"`
}

var blockKeywords = []string{"trailer", "preview", "banner", "logo", "intro", "ad"}

// IsBlockedLocator reports whether s looks like a decoy resource. Short keywords
// must appear as a separate token so that "download" or "uploads" do not match "ad".
func IsBlockedLocator(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range blockKeywords {
		if len(kw) >= 4 {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		for _, token := range strings.FieldsFunc(lower, isTokenSeparator) {
			if token == kw || token == kw+"s" {
				return true
			}
		}
	}
	return false
}

func isTokenSeparator(r rune) bool {
	return (r < 'a' || r > 'z') && (r < '0' || r > '9')
}

type TaskStatus string

const (
	StatusQueued     TaskStatus = "queued"
	StatusProbing    TaskStatus = "probing"
	StatusExtracting TaskStatus = "extracting"
	StatusSelecting  TaskStatus = "selecting"
	StatusFetching   TaskStatus = "fetching"
	StatusUploading  TaskStatus = "uploading"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var transitions = map[TaskStatus][]TaskStatus{
	StatusQueued:     {StatusProbing},
	StatusProbing:    {StatusExtracting},
	StatusExtracting: {StatusFetching, StatusSelecting},
	StatusFetching:   {StatusUploading, StatusExtracting, StatusSelecting},
	StatusSelecting:  {StatusUploading, StatusCompleted},
	StatusUploading:  {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal move. Failed and cancelled
// are reachable from every non-terminal state.
func CanTransition(from, to TaskStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Snapshot is the externally visible, read-only view of a download task.
type Snapshot struct {
	ID        string            `json:"task_id"`
	RequestID string            `json:"request_id,omitempty"`
	Title     string            `json:"movie_title"`
	Requester string            `json:"requester,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    TaskStatus        `json:"status"`
	Progress  float64           `json:"progress_percent"`
	Error     string            `json:"error,omitempty"`
	Detail    string            `json:"error_detail,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	Source    string            `json:"source,omitempty"`
	FilePath  string            `json:"file_path,omitempty"`
	Torrents  []Candidate       `json:"torrents,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a copy that shares no slices or maps with s.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Warnings != nil {
		c.Warnings = append([]string(nil), s.Warnings...)
	}
	if s.Torrents != nil {
		c.Torrents = append([]Candidate(nil), s.Torrents...)
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
