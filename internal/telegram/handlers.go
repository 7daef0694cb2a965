package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/auth"
	"focus-keeper/internal/focus"
	"focus-keeper/internal/userdoc"
)

const (
	shareContactText = "📱 Share contact"
	openAppText      = "🎯 Open Focus Keeper"
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	user := auth.User{
		ID:        msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	if err := b.users.Touch(user); err != nil {
		log.Printf("failed to record user %d: %v", user.ID, err)
	}

	if msg.Contact != nil {
		b.handleContact(msg, user)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if !b.users.IsRegistered(user.ID) {
		b.askContact(msg.Chat.ID)
		return
	}
	b.sendMessage(msg.Chat.ID, "Use /focus [minutes] to start a session, /done to finish it, /stats for your progress.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	uid := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		if b.users.IsRegistered(uid) {
			b.sendAppLink(chatID, "Welcome back!")
			return
		}
		b.askContact(chatID)
		return
	case "report":
		b.handleReportCommand(msg)
		return
	}

	if !b.users.IsRegistered(uid) {
		b.askContact(chatID)
		return
	}

	switch msg.Command() {
	case "focus":
		b.handleFocus(ctx, msg)
	case "done":
		b.handleDone(ctx, msg)
	case "stats":
		b.handleStats(ctx, msg)
	default:
		b.sendMessage(chatID, "Unknown command. Try /focus, /done or /stats.")
	}
}

// handleContact registers the sender once they share their own contact.
func (b *Bot) handleContact(msg *tgbotapi.Message, user auth.User) {
	c := msg.Contact
	if c.UserID != 0 && c.UserID != user.ID {
		b.sendMessage(msg.Chat.ID, "Please share your own contact using the button below.")
		return
	}
	if err := b.users.Register(user, c.PhoneNumber); err != nil {
		log.Printf("failed to register %d: %v", user.ID, err)
		b.sendMessage(msg.Chat.ID, "Registration failed, please try again later.")
		return
	}
	log.Printf("✅ user %d (@%s) registered", user.ID, user.Username)

	done := tgbotapi.NewMessage(msg.Chat.ID, "Thanks, you are registered!")
	done.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	if _, err := b.s.Send(done); err != nil {
		log.Printf("failed to send message: %v", err)
	}
	b.sendAppLink(msg.Chat.ID, "Open the app to start focusing.")
}

func (b *Bot) askContact(chatID int64) {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(shareContactText)),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true

	msg := tgbotapi.NewMessage(chatID, "To use Focus Keeper, please share your contact.")
	msg.ReplyMarkup = kb
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send contact request: %v", err)
	}
}

func (b *Bot) sendAppLink(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if b.miniAppURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(openAppText, b.miniAppURL)),
		)
	}
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send app link: %v", err)
	}
}

func (b *Bot) handleFocus(ctx context.Context, msg *tgbotapi.Message) {
	duration := focus.DefaultDurationMin
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			b.sendMessage(msg.Chat.ID, "Usage: /focus [minutes]")
			return
		}
		duration = n
	}

	sess, err := b.sessions.Start(ctx, userKey(msg.From.ID), duration)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	ends := sess.Started().Add(time.Duration(sess.DurationMin) * time.Minute)
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("⏱ Focus session started: %d min, ends at %s UTC. Send /done when finished.",
		sess.DurationMin, ends.Format("15:04")))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) {
	sess, err := b.sessions.Finish(ctx, userKey(msg.From.ID))
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if sess == nil {
		b.sendMessage(msg.Chat.ID, "No running session. Start one with /focus.")
		return
	}
	spent := sess.Ended().Sub(sess.Started()).Round(time.Minute)
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Session completed (%d min planned, %s spent). +%d points.",
		sess.DurationMin, formatDuration(spent), sess.DurationMin))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	doc, err := b.sessions.State(ctx, userKey(msg.From.ID))
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.sendMessage(msg.Chat.ID, formatStats(doc))
}

// handleReportCommand handles /report (admin only).
func (b *Bot) handleReportCommand(msg *tgbotapi.Message) {
	if b.adminUserID == 0 || msg.From.ID != b.adminUserID {
		b.sendMessage(msg.Chat.ID, "❌ This command is available to the administrator only.")
		return
	}
	text, err := b.buildReport()
	if err != nil {
		log.Printf("❌ report generation failed: %v", err)
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Report failed: %v", err))
		return
	}
	b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) replyError(chatID int64, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		b.sendMessage(chatID, "A session is already running. Send /done to finish it.")
	case apperr.KindValidation:
		b.sendMessage(chatID, fmt.Sprintf("⚠️ %s", validationMessage(err)))
	case apperr.KindStorage:
		log.Printf("storage failure: %v", err)
		b.sendMessage(chatID, "Storage is unavailable right now, please try again later.")
	default:
		log.Printf("request failed: %v", err)
		b.sendMessage(chatID, "Sorry, something went wrong.")
	}
}

func validationMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

func formatStats(doc *userdoc.Document) string {
	var bld strings.Builder
	p := doc.Profile
	bld.WriteString("📈 Your progress\n")
	bld.WriteString(fmt.Sprintf("Points: %d\n", p.Points))
	bld.WriteString(fmt.Sprintf("Streak: %d (best %d)\n", p.Streak, p.BestStreak))
	bld.WriteString(fmt.Sprintf("Completed sessions: %d\n", len(doc.Sessions)))
	if len(p.Achievements) > 0 {
		bld.WriteString("Achievements: " + strings.Join(p.Achievements, ", ") + "\n")
	}
	if a := doc.ActiveSession; a != nil {
		bld.WriteString(fmt.Sprintf("Running: %d min session since %s UTC\n", a.DurationMin, a.Started().Format("15:04")))
	}
	return bld.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
