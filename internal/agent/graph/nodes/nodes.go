package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/concertbot/server/internal/agent/graph/conversations"
	"github.com/concertbot/server/internal/agent/graph/nlu"
	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
	logx "github.com/concertbot/server/pkg/logger"
	"github.com/concertbot/server/pkg/metrics"
)

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.SessionID == "" {
			s.SessionID = in.SessionID
		}
		s.Session = nil
		s.Classified = nil
		return in, nil
	}
}

// NewInputConverterNode loads the session, records the user message and
// passes the trimmed text on.
func NewInputConverterNode(
	sessions model.SessionRepository,
	mm *conversations.MessagesManager,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) (string, error) {
		text := strings.TrimSpace(input.Query)
		if text == "" {
			return "", errx.ErrEmptyMessage
		}

		session, err := sessions.Get(ctx, input.SessionID)
		if err != nil {
			return "", fmt.Errorf("load session: %w", err)
		}

		if err := mm.SaveUserMessage(ctx, input.SessionID, text); err != nil {
			return "", fmt.Errorf("save user message: %w", err)
		}

		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Session = session
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		return text, nil
	})
}

// NewStageCondition routes the first turn to name collection and every
// later turn to the classifier.
func NewStageCondition() func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return "", err
		}
		if session.NameCollected() {
			return NodeClassifier, nil
		}
		logx.Debug().Str("session_id", session.ID).Msg("Routing to name collector")
		return NodeNameCollector, nil
	}
}

// NewNameCollectorNode stores the visitor's name and warms the cache for
// the default city. The warm-up result is discarded.
func NewNameCollectorNode(finder model.ConcertFinder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, text string) (*model.Reply, error) {
		name := nlu.CleanName(text)

		var sessionID, city string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}
			state.Session.CollectName(name)
			sessionID = state.Session.ID
			city = defaultCity(state.Session)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().Str("session_id", sessionID).Str("name", name).Msg("Name collected")
		metrics.Turns.WithLabelValues("name").Inc()

		if city != "" {
			if _, err := finder.ByCity(ctx, sessionID, city); err != nil {
				logx.Warn().Err(err).Str("session_id", sessionID).Str("city", city).Msg("Cache warm-up failed")
			}
		}

		return model.TextReply("", WelcomeText(name)), nil
	})
}

// NewClassifierNode runs the keyword classifier against the session's default city.
func NewClassifierNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, text string) (model.ClassifiedMessage, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return model.ClassifiedMessage{}, err
		}
		return nlu.Classify(text, defaultCity(session)), nil
	})
}

// NewClassifierPostHandler creates the post-handler for Classifier node
func NewClassifierPostHandler() func(context.Context, model.ClassifiedMessage, *model.AppState) (model.ClassifiedMessage, error) {
	return func(ctx context.Context, out model.ClassifiedMessage, state *model.AppState) (model.ClassifiedMessage, error) {
		// Save classification to State
		state.Classified = &out

		logx.Debug().
			Str("session_id", state.SessionID).
			Str("intent", string(out.Intent)).
			Strs("genres", out.Genres).
			Strs("locations", out.Locations).
			Strs("dates", out.Dates).
			Msg("Message classified")
		metrics.Turns.WithLabelValues(string(out.Intent)).Inc()
		return out, nil
	}
}

// NewIntentCondition creates the condition function for intent routing
func NewIntentCondition() func(context.Context, model.ClassifiedMessage) (string, error) {
	return func(ctx context.Context, in model.ClassifiedMessage) (string, error) {
		switch in.Intent {
		case model.IntentSearchByGenre:
			return NodeGenreSearch, nil
		case model.IntentSearchByLocation, model.IntentPossibleLocationOrArtist:
			return NodeLocationSearch, nil
		case model.IntentSearchByDate:
			return NodeDateSearch, nil
		default:
			return NodeCannedReply, nil
		}
	}
}

// NewGenreSearchNode lists concerts of the first genre and schedules a
// follow-up question about it.
func NewGenreSearchNode(finder model.ConcertFinder, followUpDelay time.Duration, pick Picker) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ClassifiedMessage) (*model.Reply, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return nil, err
		}
		name := userName(session)
		genre := in.FirstGenre()
		city := searchCity(in, defaultCity(session))

		logx.Debug().Str("session_id", session.ID).Str("genre", genre).Str("city", city).Msg("Searching by genre")
		listing, err := finder.ByGenre(ctx, session.ID, genre, city)
		if err != nil {
			return nil, fmt.Errorf("search by genre: %w", err)
		}

		reply := model.ListingReply(in.Intent, PersonalizeListing(listing, name))
		reply.FollowUps = []model.DelayedReply{{
			Delay: followUpDelay,
			Reply: model.TextReply(in.Intent, FollowUpQuestion(genre, name, pick)),
		}}
		return reply, nil
	})
}

// NewLocationSearchNode lists concerts in the first location entity.
func NewLocationSearchNode(finder model.ConcertFinder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ClassifiedMessage) (*model.Reply, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return nil, err
		}
		city := in.FirstLocation()
		if city == "" {
			city = defaultCity(session)
		}

		logx.Debug().Str("session_id", session.ID).Str("city", city).Msg("Searching by location")
		listing, err := finder.ByCity(ctx, session.ID, city)
		if err != nil {
			return nil, fmt.Errorf("search by location: %w", err)
		}
		return model.ListingReply(in.Intent, PersonalizeListing(listing, userName(session))), nil
	})
}

// NewDateSearchNode lists concerts for the first date phrase.
func NewDateSearchNode(finder model.ConcertFinder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ClassifiedMessage) (*model.Reply, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return nil, err
		}
		city := in.FirstLocation()
		if city == "" {
			city = defaultCity(session)
		}
		phrase := in.FirstDate()

		logx.Debug().Str("session_id", session.ID).Str("date", phrase).Str("city", city).Msg("Searching by date")
		listing, err := finder.ByDateRange(ctx, session.ID, phrase, city)
		if err != nil {
			return nil, fmt.Errorf("search by date: %w", err)
		}
		return model.ListingReply(in.Intent, PersonalizeListing(listing, userName(session))), nil
	})
}

// NewCannedReplyNode answers greetings, thanks, general and unknown questions.
func NewCannedReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ClassifiedMessage) (*model.Reply, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return nil, err
		}
		return model.TextReply(in.Intent, cannedText(in.Intent, userName(session))), nil
	})
}

// NewResponseFinalizerNode persists the session and records the reply in
// the history. Listings are recorded as a one-line summary.
func NewResponseFinalizerNode(
	sessions model.SessionRepository,
	mm *conversations.MessagesManager,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, reply *model.Reply) (*model.Reply, error) {
		session, err := currentSession(ctx)
		if err != nil {
			return nil, err
		}
		if err := sessions.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}

		content := reply.Text
		if reply.Kind == model.ReplyListing {
			content = ListingHistoryText(userName(session))
		}
		if err := mm.SaveResponse(ctx, session.ID, content); err != nil {
			logx.Error().
				Str("session_id", session.ID).
				Err(err).
				Msg("Error saving assistant response")
		}
		return reply, nil
	})
}

func currentSession(ctx context.Context) (*model.Session, error) {
	var session *model.Session
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		if state.Session == nil {
			return fmt.Errorf("missing session in state")
		}
		session = state.Session
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return session, nil
}
