package upload

import (
	"context"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
)

// Upload is a finished file ready to be handed to the requester.
type Upload struct {
	Path      string
	Title     string
	Requester string
}

// Uploader delivers results. A failed delivery never changes the outcome of the
// download itself.
type Uploader interface {
	Upload(ctx context.Context, u Upload) error
	PublishTorrents(ctx context.Context, title, requester string, cands []domain.Candidate) error
}

// Noop accepts everything and delivers nothing. Used when no bot token is configured.
type Noop struct{}

func (Noop) Upload(context.Context, Upload) error { return nil }

func (Noop) PublishTorrents(context.Context, string, string, []domain.Candidate) error {
	return nil
}
