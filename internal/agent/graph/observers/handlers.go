package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"

	logx "github.com/concertbot/server/pkg/logger"
)

type startKey struct{}

// NewAllCallbacks logs node and graph start/end/error at debug level with
// the elapsed time of each run.
func NewAllCallbacks() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(onStart).
		OnEndFn(onEnd).
		OnErrorFn(onError).
		Build()
}

func onStart(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
	if info == nil {
		return ctx
	}
	logx.Debug().Str("node", info.Name).Str("component", string(info.Component)).Msg("node start")
	return context.WithValue(ctx, startKey{}, time.Now())
}

func onEnd(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
	if info == nil {
		return ctx
	}
	logx.Debug().Str("node", info.Name).Str("component", string(info.Component)).
		Dur("elapsed", elapsed(ctx)).Msg("node end")
	return ctx
}

func onError(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
	if info == nil {
		return ctx
	}
	logx.Warn().Err(err).Str("node", info.Name).Str("component", string(info.Component)).
		Dur("elapsed", elapsed(ctx)).Msg("node error")
	return ctx
}

func elapsed(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}
