// Package telegram delivers digests as bot messages. Destinations look like
// "telegram:{chat_id}".
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"crest/internal/digest"
	logx "crest/pkg/logx"
)

const Scheme = "telegram:"

type Config struct {
	Token   string
	APIURL  string        // empty uses the public Bot API
	Timeout time.Duration // 0 means 15s
}

type Transport struct {
	bot *tele.Bot
	log logx.Logger
}

// New builds an offline bot: no getMe call and no polling, sending only.
func New(cfg Config, log logx.Logger) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Transport{bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

func (t *Transport) Name() string { return "telegram" }

func (t *Transport) Accepts(dest string) bool {
	_, err := ParseDestination(dest)
	return err == nil
}

// ParseDestination extracts the chat id of "telegram:{chat_id}".
func ParseDestination(dest string) (int64, error) {
	rest, ok := strings.CutPrefix(dest, Scheme)
	if !ok {
		return 0, fmt.Errorf("not a telegram destination")
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("bad telegram chat id %q", rest)
	}
	return id, nil
}

// Deliver sends p as one HTML message. The bot API call itself does not
// take a context, so ctx is only checked before sending.
func (t *Transport) Deliver(ctx context.Context, dest string, p digest.Payload) error {
	id, err := ParseDestination(dest)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = t.bot.Send(&tele.Chat{ID: id}, Format(p), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// mdLink matches the [text](url) links digest lines are written with.
var mdLink = regexp.MustCompile(`\[([^\[\]\n]*)\]\((https?://[^\s()]+)\)`)

// Format renders a digest as Telegram HTML: bold body, then each entry as an
// optional title line followed by its description. Upstream text is escaped,
// so only the links become markup.
func Format(p digest.Payload) string {
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(p.Body) + "</b>")
	for _, e := range p.Entries {
		b.WriteString("\n\n")
		if e.Title != "" {
			b.WriteString(toHTML(e.Title))
			b.WriteString("\n")
		}
		b.WriteString(toHTML(e.Description))
	}
	return b.String()
}

func toHTML(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range mdLink.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(html.EscapeString(s[last:m[0]]))
		text, href := s[m[2]:m[3]], s[m[4]:m[5]]
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(text))
		last = m[1]
	}
	b.WriteString(html.EscapeString(s[last:]))
	return b.String()
}
