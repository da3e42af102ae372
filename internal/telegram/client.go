// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// Options configures a Client.
type Options struct {
	BotToken       string
	ChatID         string
	MaxRetries     int
	RetryDelayBase time.Duration
}

// sender is the part of the bot API used for outgoing messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client delivers run reports to a single chat.
type Client struct {
	bot        *tgbotapi.BotAPI
	out        sender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewClient authenticates the bot and resolves the target chat.
func NewClient(opts Options) (*Client, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(opts.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID %q: %w", opts.ChatID, err)
	}
	bot, err := tgbotapi.NewBotAPI(opts.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	c := newClient(bot, chatID, opts)
	c.bot = bot
	return c, nil
}

func newClient(out sender, chatID int64, opts Options) *Client {
	c := &Client{out: out, chatID: chatID, maxRetries: opts.MaxRetries, retryDelay: opts.RetryDelayBase}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	return c
}

// LatestFunc returns the most recent stored run report, or nil when none exists.
type LatestFunc func() (*models.RunReport, error)

// ListenForCommands answers /ping and /latest until ctx is cancelled.
// It returns immediately.
func (c *Client) ListenForCommands(ctx context.Context, latest LatestFunc) {
	if c.bot == nil {
		return
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := c.bot.GetUpdatesChan(cfg)

	go func() {
		defer c.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				if reply, ok := commandReply(update.Message.Command(), latest); ok {
					msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
					msg.ParseMode = "MarkdownV2"
					c.out.Send(msg) //nolint:errcheck
				}
			}
		}
	}()
}

// commandReply renders the MarkdownV2 answer to a bot command.
func commandReply(command string, latest LatestFunc) (string, bool) {
	switch command {
	case "ping":
		return "Pong", true
	case "latest":
		if latest == nil {
			return "Run storage is disabled", true
		}
		report, err := latest()
		switch {
		case err != nil:
			return fmt.Sprintf("⚠️ `%s`", escapeCode(err.Error())), true
		case report == nil:
			return "No runs stored yet", true
		}
		return formatReport(report, maxListed), true
	}
	return "", false
}

// sendMarkdownV2 sends text to the chat, retrying with a linearly growing delay.
// Waiting between attempts stops early when ctx is done.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if _, lastErr = c.out.Send(msg); lastErr == nil {
			return nil
		}
		if attempt == c.maxRetries {
			break
		}
		timer := time.NewTimer(c.retryDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("send aborted after %d attempt(s): %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError reports a run that failed before producing a report.
func (c *Client) SendError(ctx context.Context, runErr error) error {
	return c.sendMarkdownV2(ctx, fmt.Sprintf("⚠️ *Analysis run failed*\n`%s`", escapeCode(runErr.Error())))
}

// Send delivers the summary of a finished run.
func (c *Client) Send(ctx context.Context, report *models.RunReport) error {
	return c.sendMarkdownV2(ctx, formatReport(report, maxListed))
}

// maxListed caps how many order ids, symbols or patterns a message lists per section.
const maxListed = 10

// formatReport formats a run report into a Telegram MarkdownV2 message.
func formatReport(report *models.RunReport, limit int) string {
	var b strings.Builder

	b.WriteString("📊 *Venue Analysis Report*\n\n")
	fmt.Fprintf(&b, "📅 Run: %s\n", escapeMarkdownV2(report.StartedAt.UTC().Format("2006-01-02 15:04:05")))
	if report.Source != "" {
		fmt.Fprintf(&b, "📁 Source: `%s`\n", escapeCode(report.Source))
	}
	fmt.Fprintf(&b, "Events: %d, rejected: %d, flagged rows: %d\n\n",
		report.Events, report.Rejected, report.FlaggedRows)

	for _, v := range report.Venues {
		fmt.Fprintf(&b, "🏛 *%s*\n", escapeMarkdownV2(v.Venue))
		fmt.Fprintf(&b, "   Sent %d, traded %d, cancelled %d, open %d\n",
			v.OrdersSent, v.TradesPassed, v.OrdersCancelled, v.OpenOrders)
		if v.ClosedOrders > 0 {
			fmt.Fprintf(&b, "   Lifetime %s ± %s\n",
				escapeMarkdownV2(fmt.Sprintf("%.3fs", v.MeanDuration)),
				escapeMarkdownV2(fmt.Sprintf("%.3fs", v.StdDevDuration)))
		}
		if len(v.FlaggedOrders) > 0 {
			fmt.Fprintf(&b, "   ⏳ Long\\-lived orders \\(%d\\): %s\n",
				len(v.FlaggedOrders), formatList(v.FlaggedOrders, limit))
		}
		if len(v.NovelSymbols) > 0 {
			fmt.Fprintf(&b, "   🆕 Novel symbols \\(%d\\): %s\n",
				len(v.NovelSymbols), formatList(v.NovelSymbols, limit))
		}
		b.WriteString("\n")
	}

	if len(report.Patterns) > 0 {
		b.WriteString("🧬 *Top lifecycle patterns*\n")
		for i, p := range report.Patterns {
			if i >= limit {
				break
			}
			fmt.Fprintf(&b, "%d\\. %s ×%d: %s\n",
				i+1, escapeMarkdownV2(p.ID), p.Count, escapeMarkdownV2(p.Shape))
		}
	}

	return b.String()
}

func formatList(items []string, limit int) string {
	shown := items
	if len(shown) > limit {
		shown = shown[:limit]
	}
	escaped := make([]string, len(shown))
	for i, item := range shown {
		escaped[i] = escapeMarkdownV2(item)
	}
	out := strings.Join(escaped, ", ")
	if len(items) > limit {
		out += fmt.Sprintf(" and %d more", len(items)-limit)
	}
	return out
}

// escapeCode escapes text placed inside an inline code span.
func escapeCode(text string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
