// Package service is the boundary in front of the turn graph: it owns
// session lifecycle, admits one turn per session at a time, delivers
// delayed replies and turns failed turns into an apology plus sample data.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/concertbot/server/internal/agent/graph"
	"github.com/concertbot/server/internal/agent/graph/conversations"
	"github.com/concertbot/server/internal/agent/graph/nlu"
	"github.com/concertbot/server/internal/agent/graph/nodes"
	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
	"github.com/concertbot/server/internal/geo"
	logx "github.com/concertbot/server/pkg/logger"
	"github.com/concertbot/server/pkg/metrics"
)

const deliveryTimeout = 5 * time.Second

// LocationResolver maps browser coordinates to a default location.
type LocationResolver interface {
	Resolve(ctx context.Context, coords *geo.Coordinates) geo.Resolution
}

// FallbackProvider builds the sample listing sent after a failed turn.
type FallbackProvider interface {
	ForLocation(location string) *model.Listing
}

// Deps are the collaborators wired by main.
type Deps struct {
	Runner           graph.Runner
	Sessions         model.SessionRepository
	ConversationRepo model.ConversationRepository
	Cache            model.ConcertCache
	Finder           model.ConcertFinder
	Fallback         FallbackProvider
	Resolver         LocationResolver
	// Hub receives replies produced outside a request, such as follow-up
	// questions and delayed sample listings.
	Hub *Hub
}

type Service struct {
	deps      Deps
	cfg       model.ConversationConfig
	messages  *conversations.MessagesManager
	scheduler *Scheduler
	busy      sync.Map
	newID     func() string
	now       func() time.Time
}

func New(deps Deps, cfg model.ConversationConfig) (*Service, error) {
	switch {
	case deps.Runner == nil:
		return nil, errors.New("service: runner is nil")
	case deps.Sessions == nil:
		return nil, errors.New("service: session repository is nil")
	case deps.ConversationRepo == nil:
		return nil, errors.New("service: conversation repository is nil")
	case deps.Cache == nil:
		return nil, errors.New("service: concert cache is nil")
	case deps.Finder == nil:
		return nil, errors.New("service: concert finder is nil")
	case deps.Fallback == nil:
		return nil, errors.New("service: fallback provider is nil")
	case deps.Resolver == nil:
		return nil, errors.New("service: location resolver is nil")
	case deps.Hub == nil:
		return nil, errors.New("service: hub is nil")
	}

	return &Service{
		deps:      deps,
		cfg:       cfg,
		messages:  conversations.NewMessagesManager(deps.ConversationRepo, cfg),
		scheduler: NewScheduler(),
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// StartSession creates a session at the resolved default location and
// returns it with the opening question.
func (s *Service) StartSession(ctx context.Context, coords *geo.Coordinates) (*model.Session, *model.Reply, error) {
	res := s.deps.Resolver.Resolve(ctx, coords)
	session := &model.Session{
		ID:              s.newID(),
		Stage:           model.StageAwaitingName,
		DefaultLocation: res.Location,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		return nil, nil, err
	}
	metrics.ActiveSessions.Inc()
	logx.Info().Str("session_id", session.ID).Str("city", session.DefaultLocation.City).
		Bool("random_city", res.Random).Msg("session started")

	s.warm(ctx, session)

	reply := model.TextReply("", nodes.IntroText)
	if err := s.messages.SaveResponse(ctx, session.ID, reply.Text); err != nil {
		logx.Warn().Err(err).Str("session_id", session.ID).Msg("failed to record intro")
	}
	return session, reply, nil
}

// UpdateLocation re-resolves the default location. When the name is known
// and the city was picked at random the visitor is told about it.
func (s *Service) UpdateLocation(ctx context.Context, sessionID string, coords *geo.Coordinates) (*model.Session, *model.Reply, error) {
	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	res := s.deps.Resolver.Resolve(ctx, coords)
	session.DefaultLocation = res.Location
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		return nil, nil, err
	}
	logx.Info().Str("session_id", sessionID).Str("city", res.Location.City).Bool("random_city", res.Random).
		Msg("default location updated")

	s.warm(ctx, session)

	if !res.Random || !session.NameCollected() {
		return session, nil, nil
	}
	reply := model.TextReply("", nodes.RandomCityText(session.UserName, res.Location.City))
	if err := s.messages.SaveResponse(ctx, sessionID, reply.Text); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to record location notice")
	}
	return session, reply, nil
}

// HandleMessage runs one turn. Follow-ups are scheduled; a failed turn
// yields an apology now and a sample listing after FallbackDelay.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (*model.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errx.ErrEmptyMessage
	}

	release, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	log := logx.Session(sessionID)

	if s.cfg.CancelPending {
		if n := s.scheduler.Cancel(sessionID); n > 0 {
			log.Debug().Int("cancelled", n).Msg("pending replies cancelled by new turn")
		}
	}

	reply, err := s.deps.Runner.Invoke(ctx, model.QueryInput{SessionID: sessionID, Query: text})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Error().Err(err).Msg("turn failed, serving sample concerts")
		return s.recoverTurn(ctx, session), nil
	}

	for _, f := range reply.FollowUps {
		s.schedule(sessionID, f)
	}
	return reply, nil
}

func (s *Service) recoverTurn(ctx context.Context, session *model.Session) *model.Reply {
	name := displayName(session)
	location := session.DefaultLocation.City
	if location == "" {
		location = nodes.UnknownArea
	}

	apology := model.TextReply("", nodes.ApologyText(name))
	if err := s.messages.SaveResponse(ctx, session.ID, apology.Text); err != nil {
		logx.Warn().Err(err).Str("session_id", session.ID).Msg("failed to record apology")
	}

	listing := nodes.PersonalizeListing(s.deps.Fallback.ForLocation(location), name)
	metrics.FallbackListings.WithLabelValues("turn_error").Inc()
	s.schedule(session.ID, model.DelayedReply{
		Delay: s.cfg.FallbackDelay,
		Reply: model.ListingReply("", listing),
	})
	return apology
}

func (s *Service) schedule(sessionID string, d model.DelayedReply) {
	s.scheduler.After(sessionID, d.Delay, func() { s.deliver(sessionID, d.Reply) })
}

// deliver runs on the timer goroutine.
func (s *Service) deliver(sessionID string, reply *model.Reply) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		logx.Debug().Err(err).Str("session_id", sessionID).Msg("dropping delayed reply")
		return
	}

	content := reply.Text
	if reply.Kind == model.ReplyListing {
		content = nodes.ListingHistoryText(displayName(session))
	}
	if err := s.messages.SaveResponse(ctx, sessionID, content); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to record delayed reply")
	}
	s.deps.Hub.Notify(sessionID, reply)
}

// warm fetches the default city's concerts so the first query hits the cache.
func (s *Service) warm(ctx context.Context, session *model.Session) {
	city := session.DefaultLocation.City
	if city == "" {
		return
	}
	if _, err := s.deps.Finder.ByCity(ctx, session.ID, city); err != nil {
		logx.Warn().Err(err).Str("session_id", session.ID).Str("city", city).Msg("cache warm-up failed")
	}
}

// Session returns the stored session.
func (s *Service) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.deps.Sessions.Get(ctx, sessionID)
}

// History returns the bounded conversation history.
func (s *Service) History(ctx context.Context, sessionID string) ([]conversations.Entry, error) {
	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.History(ctx, sessionID)
}

// Pending drains delayed replies that no subscriber received.
func (s *Service) Pending(ctx context.Context, sessionID string) ([]*model.Reply, error) {
	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.deps.Hub.Drain(sessionID), nil
}

// EndSession cancels timers and drops every trace of the session. A session
// with a turn in flight is not ended and ErrSessionBusy is returned.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	release, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		return err
	}
	s.scheduler.Cancel(sessionID)

	var errs []error
	if err := s.deps.Cache.Forget(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("forget cache: %w", err))
	}
	if err := s.messages.Clear(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("clear history: %w", err))
	}
	if err := s.deps.Sessions.Delete(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	s.deps.Hub.Forget(sessionID)
	metrics.ActiveSessions.Dec()
	logx.Info().Str("session_id", sessionID).Msg("session ended")
	return errors.Join(errs...)
}

// Close stops all pending timers.
func (s *Service) Close() {
	s.scheduler.Close()
}

func (s *Service) acquire(sessionID string) (func(), error) {
	if _, loaded := s.busy.LoadOrStore(sessionID, struct{}{}); loaded {
		return nil, errx.ErrSessionBusy
	}
	return func() { s.busy.Delete(sessionID) }, nil
}

// Subscribe streams delayed replies of a session until cancel is called.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan *model.Reply, func(), error) {
	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.deps.Hub.Subscribe(sessionID)
	return ch, cancel, nil
}

func displayName(session *model.Session) string {
	if session.UserName == "" {
		return nlu.DefaultName
	}
	return session.UserName
}
