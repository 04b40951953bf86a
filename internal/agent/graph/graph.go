package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/concertbot/server/internal/agent/graph/conversations"
	"github.com/concertbot/server/internal/agent/graph/nodes"
	"github.com/concertbot/server/internal/agent/graph/observers"
	"github.com/concertbot/server/internal/agent/model"
	logx "github.com/concertbot/server/pkg/logger"
)

const maxRunSteps = 10

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.Reply, error)
}

// Config holds everything needed to compose the turn graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the MessagesManager.
type Config struct {
	Sessions         model.SessionRepository
	ConversationRepo model.ConversationRepository
	Finder           model.ConcertFinder
	Conversation     model.ConversationConfig
	Picker           nodes.Picker
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Sessions        model.SessionRepository
	MessagesManager *conversations.MessagesManager
	Finder          model.ConcertFinder
	FollowUpDelay   time.Duration
	Picker          nodes.Picker
}

// GraphBuilder handles the construction of the turn graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.Reply]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.Reply]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.Reply, error) {
	return r.runnable.Invoke(ctx, model.QueryInput{
		SessionID: in.SessionID,
		Query:     in.Query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
}

// BuildResponseGraph composes the MessagesManager, builds the graph, and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Sessions:        cfg.Sessions,
		MessagesManager: mm,
		Finder:          cfg.Finder,
		FollowUpDelay:   cfg.Conversation.FollowUpDelay,
		Picker:          cfg.Picker,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Turn graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled turn graph:
//
//	START -> input_converter -> name_collector ------------------------> response_finalizer -> END
//	                         \-> classifier -> genre|location|date|canned -/
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.Reply], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("session repository is nil")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Finder == nil {
		return nil, fmt.Errorf("concert finder is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.Reply](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	cfg := b.config
	add := func(key string, node *compose.Lambda, opts ...compose.GraphAddNodeOpt) error {
		if err := b.graph.AddLambdaNode(key, node, opts...); err != nil {
			logx.Error().Err(err).Str("node", key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", key, err)
		}
		return nil
	}

	steps := []struct {
		key  string
		node *compose.Lambda
		opts []compose.GraphAddNodeOpt
	}{
		{nodes.NodeInputConverter, nodes.NewInputConverterNode(cfg.Sessions, cfg.MessagesManager),
			[]compose.GraphAddNodeOpt{compose.WithStatePreHandler(nodes.NewInputConverterPreHandler())}},
		{nodes.NodeNameCollector, nodes.NewNameCollectorNode(cfg.Finder), nil},
		{nodes.NodeClassifier, nodes.NewClassifierNode(),
			[]compose.GraphAddNodeOpt{compose.WithStatePostHandler(nodes.NewClassifierPostHandler())}},
		{nodes.NodeGenreSearch, nodes.NewGenreSearchNode(cfg.Finder, cfg.FollowUpDelay, cfg.Picker), nil},
		{nodes.NodeLocationSearch, nodes.NewLocationSearchNode(cfg.Finder), nil},
		{nodes.NodeDateSearch, nodes.NewDateSearchNode(cfg.Finder), nil},
		{nodes.NodeCannedReply, nodes.NewCannedReplyNode(), nil},
		{nodes.NodeResponseFinalizer, nodes.NewResponseFinalizerNode(cfg.Sessions, cfg.MessagesManager), nil},
	}
	for _, s := range steps {
		opts := append([]compose.GraphAddNodeOpt{compose.WithNodeName(s.key)}, s.opts...)
		if err := add(s.key, s.node, opts...); err != nil {
			return err
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeNameCollector, nodes.NodeResponseFinalizer},
		{nodes.NodeGenreSearch, nodes.NodeResponseFinalizer},
		{nodes.NodeLocationSearch, nodes.NodeResponseFinalizer},
		{nodes.NodeDateSearch, nodes.NodeResponseFinalizer},
		{nodes.NodeCannedReply, nodes.NodeResponseFinalizer},
		{nodes.NodeResponseFinalizer, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	stageBranch := compose.NewGraphBranch(
		nodes.NewStageCondition(),
		map[string]bool{
			nodes.NodeNameCollector: true,
			nodes.NodeClassifier:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeInputConverter, stageBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding stage branch")
		return fmt.Errorf("error adding stage branch: %w", err)
	}

	intentBranch := compose.NewGraphBranch(
		nodes.NewIntentCondition(),
		map[string]bool{
			nodes.NodeGenreSearch:    true,
			nodes.NodeLocationSearch: true,
			nodes.NodeDateSearch:     true,
			nodes.NodeCannedReply:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassifier, intentBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding intent branch")
		return fmt.Errorf("error adding intent branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.Reply], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("concert_turn"),
		compose.WithMaxRunSteps(maxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
