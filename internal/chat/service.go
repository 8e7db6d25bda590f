// Package chat orchestrates one conversational turn: session identity,
// history, the bounded prompt, the provider call, and the persisted exchange.
package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lfarias/groqchat/internal/prompt"
	"github.com/lfarias/groqchat/internal/store"
)

// DefaultWindowSize is the number of prior exchanges retained when a request
// does not set window_size.
const DefaultWindowSize = 5

// Completer is the external completion provider: assembled turns in, reply
// text out. May fail or time out; the service never retries it.
type Completer interface {
	ChatCompletion(ctx context.Context, model string, turns []prompt.Turn) (string, error)
}

type Service struct {
	store        store.Store
	completer    Completer
	locks        *lockManager
	defaultModel string
	now          func() time.Time
}

func NewService(st store.Store, completer Completer, defaultModel string) *Service {
	return &Service{
		store:        st,
		completer:    completer,
		locks:        newLockManager(),
		defaultModel: defaultModel,
		now:          time.Now,
	}
}

// CleanupLocks drops per-session locks idle longer than maxAge. Run
// periodically from main.
func (s *Service) CleanupLocks(maxAge time.Duration) {
	s.locks.cleanup(maxAge)
}

type SendInput struct {
	UserID     string
	SessionID  string
	Message    string
	Model      string
	Persona    string
	WindowSize int
}

type SendOutput struct {
	Reply        string
	SessionID    string
	MessageCount int
}

// Send runs one turn. The steps are all-or-nothing from the caller's view but
// not transactional across the provider call: a provider success followed by
// a storage failure drops the reply and surfaces the storage error, and the
// client is expected to retry the turn.
func (s *Service) Send(ctx context.Context, in SendInput) (SendOutput, error) {
	if in.UserID == "" {
		return SendOutput{}, validationErr("user_id is required")
	}
	if in.SessionID == "" {
		return SendOutput{}, validationErr("session_id is required")
	}
	if in.Message == "" {
		return SendOutput{}, validationErr("message is required")
	}

	model := in.Model
	if model == "" {
		model = s.defaultModel
	}
	persona := prompt.ParsePersona(in.Persona)

	var out SendOutput
	err := s.locks.withLock(in.SessionID, func() error {
		if err := s.store.EnsureUser(ctx, in.UserID); err != nil {
			return storageErr("ensure user", err)
		}
		now := s.now()
		if _, err := s.store.GetOrCreateSession(ctx, in.SessionID, in.UserID, autoTitle(now), now); err != nil {
			return storageErr("get or create session", err)
		}

		records, err := s.store.ListMessages(ctx, in.SessionID)
		if err != nil {
			return storageErr("list messages", err)
		}

		turns := prompt.Build(persona, toExchanges(records), in.WindowSize, in.Message)

		reply, err := s.completer.ChatCompletion(ctx, model, turns)
		if err != nil {
			return providerErr("chat completion", err)
		}

		if _, err := s.store.AppendMessage(ctx, in.SessionID, in.Message, reply, s.now()); err != nil {
			// The provider already produced the reply; it is lost to the
			// client, which retries the whole turn.
			log.Printf("chat: reply dropped for session %s: %v", in.SessionID, err)
			return storageErr("append message", err)
		}

		count, err := s.store.CountMessages(ctx, in.SessionID)
		if err != nil {
			return storageErr("count messages", err)
		}

		out = SendOutput{Reply: reply, SessionID: in.SessionID, MessageCount: count}
		return nil
	})
	if err != nil {
		return SendOutput{}, err
	}
	return out, nil
}

type SessionInput struct {
	SessionID string // optional: a fresh id is minted when empty
	UserID    string
}

type SessionOutput struct {
	SessionID    string
	History      []store.MessageRecord
	MessageCount int
	StartTime    time.Time
}

// Session ensures the session exists and returns its full history. Calling it
// again with the returned id is a no-op beyond the first creation.
func (s *Service) Session(ctx context.Context, in SessionInput) (SessionOutput, error) {
	if in.UserID == "" {
		return SessionOutput{}, validationErr("user_id is required")
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := s.store.EnsureUser(ctx, in.UserID); err != nil {
		return SessionOutput{}, storageErr("ensure user", err)
	}
	now := s.now()
	rec, err := s.store.GetOrCreateSession(ctx, sessionID, in.UserID, autoTitle(now), now)
	if err != nil {
		return SessionOutput{}, storageErr("get or create session", err)
	}

	history, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return SessionOutput{}, storageErr("list messages", err)
	}
	count, err := s.store.CountMessages(ctx, sessionID)
	if err != nil {
		return SessionOutput{}, storageErr("count messages", err)
	}

	return SessionOutput{
		SessionID:    sessionID,
		History:      history,
		MessageCount: count,
		StartTime:    rec.StartTime,
	}, nil
}

// Clear deletes the session and all its messages. A later Session call with
// the same id starts a fresh, empty session.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return validationErr("session_id is required")
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return storageErr("delete session", err)
	}
	return nil
}

// UserSessions returns the user's sessions with message counts, newest first.
func (s *Service) UserSessions(ctx context.Context, userID string) ([]store.SessionSummary, error) {
	if userID == "" {
		return nil, validationErr("user_id is required")
	}
	summaries, err := s.store.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return summaries, nil
}

func toExchanges(records []store.MessageRecord) []prompt.Exchange {
	exchanges := make([]prompt.Exchange, len(records))
	for i, r := range records {
		exchanges[i] = prompt.Exchange{Human: r.Human, AI: r.AI}
	}
	return exchanges
}

func autoTitle(now time.Time) string {
	return fmt.Sprintf("Chat %s", now.Format("2006-01-02 15:04"))
}
