package upload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/torrent"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxMessageLength is the Telegram limit for a single text message.
const MaxMessageLength = 4096

var ErrInvalidRequester = errors.New("requester is not a telegram chat id")

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	api sender
}

func NewTelegram(token string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, utils.WrapError(utils.ErrExternalServiceError, "error creating bot", map[string]any{"error": err.Error()})
	}
	logutils.Log.Infof("Authorized on account %s", api.Self.UserName)
	return &Telegram{api: api}, nil
}

func (t *Telegram) Upload(ctx context.Context, u Upload) error {
	chatID, err := ParseChatID(u.Requester)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(u.Path))
	doc.Caption = u.Title
	if _, err := t.api.Send(doc); err != nil {
		logutils.Log.WithError(err).WithFields(map[string]any{
			"chat_id": chatID,
			"path":    u.Path,
		}).Error("Document not sent")
		return fmt.Errorf("send document: %w", err)
	}
	logutils.Log.WithFields(map[string]any{"chat_id": chatID, "title": u.Title}).Info("Document sent")
	return nil
}

func (t *Telegram) PublishTorrents(ctx context.Context, title, requester string, cands []domain.Candidate) error {
	chatID, err := ParseChatID(requester)
	if err != nil {
		return err
	}

	captions := make([]string, 0, len(cands))
	for _, c := range cands {
		captions = append(captions, torrent.FormatCaption(title, c))
	}
	for _, text := range SplitMessages(captions, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			logutils.Log.WithError(err).WithField("chat_id", chatID).Error("Torrent list not sent")
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func ParseChatID(requester string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(requester), 10, 64)
	if err != nil || id == 0 {
		return 0, utils.WrapError(ErrInvalidRequester, "cannot deliver result", map[string]any{"requester": requester})
	}
	return id, nil
}

// SplitMessages joins parts with blank lines into as few messages as fit under limit.
// A single part longer than limit is cut.
func SplitMessages(parts []string, limit int) []string {
	var (
		out     []string
		current strings.Builder
	)
	for _, p := range parts {
		if len(p) > limit {
			p = p[:limit]
		}
		if current.Len() > 0 && current.Len()+2+len(p) > limit {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
