package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/waspershola/hospitech-nexus-sub005/internal/metrics"
)

// Bridge prefers the local executor and falls back to the remote one. Execute always
// returns a Result; failures are reported in Result.Error.
type Bridge struct {
	Local   Executor
	Remote  Executor
	Journal Journal
	Logger  *slog.Logger
	Now     func() time.Time
}

func (b *Bridge) Execute(ctx context.Context, cmd Command) Result {
	if err := cmd.validate(); err != nil {
		return b.finish(Result{Error: err.Error(), Source: SourceBrowser})
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	if b.Local == nil {
		return b.finish(b.remote(ctx, cmd, SourceBrowser))
	}

	data, err := b.Local.Execute(ctx, cmd)
	switch {
	case err == nil:
		b.journal(cmd)
		return b.finish(Result{Data: data, Source: SourceOffline})
	case errors.Is(err, ErrNoLocalAPI):
		return b.finish(b.remote(ctx, cmd, SourceNoLocalAPI))
	default:
		b.logger().Warn("local execution failed, using remote",
			slog.String("command", cmd.Type()),
			slog.String("id", cmd.ID),
			slog.Any("err", err),
		)
		return b.finish(b.remote(ctx, cmd, SourceOfflineError))
	}
}

func (b *Bridge) remote(ctx context.Context, cmd Command, source Source) Result {
	if b.Remote == nil {
		return Result{Error: "remote executor not configured", Source: source}
	}
	data, err := b.Remote.Execute(ctx, cmd)
	if err != nil {
		return Result{Error: err.Error(), Source: source}
	}
	return Result{Data: data, Source: source}
}

// journal failures do not undo a command the local host already applied.
func (b *Bridge) journal(cmd Command) {
	if b.Journal == nil {
		return
	}
	payload := cmd.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	err := b.Journal.Append(JournalEntry{
		ID:        cmd.ID,
		Type:      cmd.Type(),
		EntityIDs: cmd.EntityIDs,
		Timestamp: b.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		b.logger().Error("journal append failed",
			slog.String("command", cmd.Type()),
			slog.String("id", cmd.ID),
			slog.Any("err", err),
		)
	}
}

func (b *Bridge) finish(r Result) Result {
	metrics.DispatchResults.WithLabelValues(string(r.Source)).Inc()
	return r
}

func (b *Bridge) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
