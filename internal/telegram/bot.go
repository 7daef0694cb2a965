package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"focus-keeper/internal/analytics"
	"focus-keeper/internal/auth"
	"focus-keeper/internal/storage"
	"focus-keeper/internal/userdoc"
)

// Sessions is the focus surface the bot drives.
type Sessions interface {
	State(ctx context.Context, key string) (*userdoc.Document, error)
	Start(ctx context.Context, key string, durationMin int) (*userdoc.Session, error)
	Finish(ctx context.Context, key string) (*userdoc.Session, error)
}

// sender is the slice of the Bot API used for replies; tests swap it out.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	sessions    Sessions
	users       *auth.Directory
	journal     storage.Recorder
	clock       clockwork.Clock
	adminUserID int64
	miniAppURL  string
}

type Option func(*Bot)

func WithJournal(r storage.Recorder) Option { return func(b *Bot) { b.journal = r } }
func WithAdmin(userID int64) Option { return func(b *Bot) { b.adminUserID = userID } }
func WithMiniAppURL(u string) Option { return func(b *Bot) { b.miniAppURL = u } }
func WithClock(c clockwork.Clock) Option { return func(b *Bot) { b.clock = c } }

func New(botToken string, sessions Sessions, users *auth.Directory, opts ...Option) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(api, sessions, users, opts...)
	log.Printf("🤖 authorized on account @%s", api.Self.UserName)
	return b, nil
}

func newBot(s sender, sessions Sessions, users *auth.Directory, opts ...Option) *Bot {
	b := &Bot{
		s:        s,
		sessions: sessions,
		users:    users,
		clock:    clockwork.NewRealClock(),
	}
	if api, ok := s.(*tgbotapi.BotAPI); ok {
		b.api = api
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start polls for updates until ctx is done. Updates are handled one at a
// time.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	b.handleIncomingMessage(ctx, update.Message)
}

// SendDailyReport posts today's journal summary to the admin chat.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	if b.adminUserID == 0 {
		log.Println("⚠️ admin user not set, skipping daily report")
		return nil
	}
	text, err := b.buildReport()
	if err != nil {
		return err
	}
	if _, err := b.s.Send(tgbotapi.NewMessage(b.adminUserID, text)); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	log.Printf("📊 daily report sent to %d", b.adminUserID)
	return nil
}

func (b *Bot) buildReport() (string, error) {
	if b.journal == nil {
		return "", fmt.Errorf("journal not configured")
	}
	stats, err := analytics.Today(b.journal, b.clock.Now().UTC())
	if err != nil {
		return "", err
	}
	return stats.GenerateReportSummary(), nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func userKey(id int64) string { return strconv.FormatInt(id, 10) }
