// ABOUTME: Streamed source: translates pushed run notifications into client events.
// ABOUTME: A producer goroutine fills an ordered queue that the iterator drains.

package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/events"
)

// DefaultIdleTimeout bounds the wait for the next streamed notification.
const DefaultIdleTimeout = 2 * time.Minute

// queueSize is the number of translated events buffered between the
// producer and the iterator.
const queueSize = 64

// StreamClient is what PushSource needs from the agent service.
type StreamClient interface {
	CreateMessage(ctx context.Context, threadID, role, content string) (*agentsvc.Message, error)
	StreamRun(ctx context.Context, threadID, agentID string, handle agentsvc.Handler) error
}

// PushSource drives runs through the service's event stream.
type PushSource struct {
	client      StreamClient
	threads     ThreadResolver
	ledger      RunLedger
	idleTimeout time.Duration
	logger      *slog.Logger
}

// PushOptions configures a PushSource.
type PushOptions struct {
	// Ledger may be nil.
	Ledger RunLedger
	// IdleTimeout is the longest gap between notifications before the
	// stream is abandoned with a timeout event. Negative disables it.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// NewPushSource creates a PushSource.
func NewPushSource(client StreamClient, threads ThreadResolver, opts PushOptions) *PushSource {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	return &PushSource{
		client:      client,
		threads:     threads,
		ledger:      opts.Ledger,
		idleTimeout: idle,
		logger:      logger.With("component", "push_source"),
	}
}

// queued is one item of the producer/consumer queue.
type queued struct {
	event events.Event
	err   error
	done  bool
}

// Events implements Source.
func (p *PushSource) Events(ctx context.Context, turn Turn) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		threadID, ok := resolveThread(ctx, p.threads, turn, yield)
		if !ok {
			return
		}
		logger := p.logger.With("thread_id", threadID, "agent_id", turn.AgentID)

		if _, err := p.client.CreateMessage(ctx, threadID, agentsvc.RoleUser, turn.Message); err != nil {
			yield(nil, fmt.Errorf("posting message: %w", err))
			return
		}

		streamCtx, cancel := context.WithCancel(ctx)
		queue := make(chan queued, queueSize)
		var g errgroup.Group
		g.Go(func() error {
			p.produce(streamCtx, logger, threadID, turn.AgentID, queue)
			return nil
		})
		defer func() {
			cancel()
			_ = g.Wait()
		}()

		var idle <-chan time.Time
		var timer *time.Timer
		if p.idleTimeout > 0 {
			timer = time.NewTimer(p.idleTimeout)
			defer timer.Stop()
			idle = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				logger.Debug("stream abandoned by caller", "error", ctx.Err())
				return

			case <-idle:
				logger.Warn("agent stream idle, giving up", "idle_timeout", p.idleTimeout)
				yield(events.NewTimeoutError("agent stream sent nothing for "+p.idleTimeout.String()), nil)
				return

			case item := <-queue:
				if timer != nil {
					timer.Reset(p.idleTimeout)
				}
				if item.done {
					return
				}
				if item.err != nil {
					yield(nil, item.err)
					return
				}
				if !yield(item.event, nil) {
					return
				}
				if e, ok := item.event.(events.Error); ok && e.Terminal() {
					return
				}
			}
		}
	}
}

// produce runs the streamed run and enqueues translated events. It always
// finishes by enqueueing a done item unless ctx is cancelled.
func (p *PushSource) produce(ctx context.Context, logger *slog.Logger, threadID, agentID string, queue chan<- queued) {
	enqueue := func(item queued) bool {
		select {
		case queue <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sawDone := false
	err := p.client.StreamRun(ctx, threadID, agentID, func(n agentsvc.Notification) error {
		if n.Kind == agentsvc.NotificationDone {
			sawDone = true
			return agentsvc.ErrStopStream
		}
		p.recordIfFinished(logger, n, agentID)
		for _, ev := range p.translate(logger, n) {
			if !enqueue(queued{event: ev}) {
				return ctx.Err()
			}
		}
		return nil
	})

	switch {
	case sawDone, ctx.Err() != nil:
	case err != nil:
		var apiErr *agentsvc.APIError
		if errors.As(err, &apiErr) {
			enqueue(queued{err: fmt.Errorf("streaming run: %w", err)})
			return
		}
		logger.Warn("agent stream interrupted", "error", err)
		enqueue(queued{event: events.NewStreamError("agent stream interrupted: " + err.Error())})
	default:
		logger.Warn("agent stream closed without completion")
		enqueue(queued{event: events.NewStreamError("agent stream closed without completion")})
	}
	enqueue(queued{done: true})
}

// recordIfFinished writes terminal run notifications to the ledger.
func (p *PushSource) recordIfFinished(logger *slog.Logger, n agentsvc.Notification, agentID string) {
	if n.Kind != agentsvc.NotificationRun || p.ledger == nil {
		return
	}
	run, err := n.Run()
	if err != nil || !run.Status.Terminal() {
		return
	}
	recordRun(p.ledger, logger, run, agentID)
}

// translate maps one notification to the events it produces. Decode
// failures and panics become a single stream error.
func (p *PushSource) translate(logger *slog.Logger, n agentsvc.Notification) (out []events.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic translating notification", "event", n.Event, "panic", r)
			out = []events.Event{events.NewStreamError(fmt.Sprintf("failed to handle %s: %v", n.Event, r))}
		}
	}()

	decodeFailed := func(err error) []events.Event {
		logger.Warn("undecodable notification", "event", n.Event, "error", err)
		return []events.Event{events.NewStreamError(err.Error())}
	}

	switch n.Kind {
	case agentsvc.NotificationThread, agentsvc.NotificationRunStepDelta, agentsvc.NotificationDone:
		return nil

	case agentsvc.NotificationRun:
		run, err := n.Run()
		if err != nil {
			return decodeFailed(err)
		}
		if run.Status.Terminal() && run.Status != agentsvc.RunStatusCompleted {
			return []events.Event{runErrorEvent(run)}
		}
		return nil

	case agentsvc.NotificationRunStep:
		step, err := n.RunStep()
		if err != nil {
			return decodeFailed(err)
		}
		if evs := stepEvents(*step); len(evs) > 0 {
			return evs
		}
		return []events.Event{events.NewRunStep(step.ID, step.Type, string(step.Status))}

	case agentsvc.NotificationMessageDelta:
		delta, err := n.MessageDelta()
		if err != nil {
			return decodeFailed(err)
		}
		return []events.Event{events.NewMessageDelta(delta.ID, delta.Text())}

	case agentsvc.NotificationMessage:
		if n.Event != "thread.message.completed" {
			return nil
		}
		msg, err := n.Message()
		if err != nil {
			return decodeFailed(err)
		}
		out = []events.Event{events.NewThreadMessage(msg.ID, msg.Role, msg.JoinedText(), msg.Status)}
		if citations, ok := citationsEvent(msg); ok {
			out = append(out, citations)
		}
		return out

	case agentsvc.NotificationError:
		return []events.Event{events.NewStreamError(n.ErrorMessage())}

	case agentsvc.NotificationUnknown:
		return []events.Event{events.NewUnhandledError(n.Event, string(n.Data))}

	default:
		return []events.Event{events.NewUnhandledError(n.Event, string(n.Data))}
	}
}
