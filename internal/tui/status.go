package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finboard/internal/api"
	"finboard/internal/dashboard"
)

// StatusLine collects the last failure reported by the dashboard for the
// bottom line of the screen.
type StatusLine struct {
	mu   sync.Mutex
	text string
	at   time.Time
	now  func() time.Time
	ttl  time.Duration
}

var _ dashboard.ErrorSink = (*StatusLine)(nil)

func NewStatusLine(ttl time.Duration) *StatusLine {
	return &StatusLine{now: time.Now, ttl: ttl}
}

func (s *StatusLine) Report(_ context.Context, op string, err error) {
	if err == nil {
		return
	}
	s.set(describe(op, err))
}

func (s *StatusLine) set(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.at = s.now()
}

// Text returns the current message, or "" once it expired.
func (s *StatusLine) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.text == "" || (s.ttl > 0 && s.now().Sub(s.at) > s.ttl) {
		return ""
	}
	return s.text
}

func describe(op string, err error) string {
	var se *api.StatusError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return "Сессия истекла, войдите снова"
	case errors.As(err, &se):
		return fmt.Sprintf("%s: ошибка сервера (%d)", op, se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return op + ": сервер не отвечает"
	default:
		return op + ": " + err.Error()
	}
}
