// Package bridge serializes editor events onto a single worker that keeps the
// open-file table and turns completion requests into model calls.
//
// Events are processed strictly in submission order, so results are emitted
// in request order. Every completion request receives exactly one result,
// keyed by its request id; failures produce an empty list plus a status
// notification and never cross the worker boundary as errors.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/chain"
	"github.com/Paranoid-AF/codelet/redact"
	"github.com/Paranoid-AF/codelet/suggest"
)

// DefaultQueueSize is the capacity of the event queue.
const DefaultQueueSize = 64

var (
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("bridge stopped")
	// ErrFileNotOpen is reported when a completion names a file that was never opened.
	ErrFileNotOpen = errors.New("file not open")
)

// Sink receives everything the bridge produces. The bridge calls it from the
// worker goroutine only.
type Sink interface {
	Result(codelet.CompletionResult)
	Status(codelet.Status)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChain sets the chain used for completions.
func WithChain(c *chain.Chain) Option {
	return func(b *Bridge) { b.chain = c }
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// Bridge owns one worker goroutine, its event queue and its open-file table.
type Bridge struct {
	sink      Sink
	chain     *chain.Chain
	queueSize int

	// Owned by the worker.
	cfg     *codelet.Config
	files   *Files
	limiter *rate.Limiter

	events chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Bridge for cfg. Nothing runs until Start.
func New(cfg *codelet.Config, sink Sink, opts ...Option) *Bridge {
	if cfg == nil {
		cfg = codelet.DefaultConfig()
	}
	b := &Bridge{
		sink:      sink,
		queueSize: DefaultQueueSize,
		cfg:       cfg,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	if b.chain == nil {
		b.chain = chain.New()
	}
	b.events = make(chan Event, b.queueSize)
	b.files = NewFiles(cfg.Files.MaxOpen, cfg.Files.IdleTTL())
	b.limiter = rate.NewLimiter(limitFor(cfg.Generation.RequestsPerMinute), 1)
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

func limitFor(perMinute int) rate.Limit {
	if perMinute <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(perMinute))
}

// Start launches the worker. The chain is started as the worker's first job.
func (b *Bridge) Start() {
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.run()
	})
}

// Submit enqueues ev. It blocks only while the queue is full and returns
// ErrStopped once the bridge has been stopped.
func (b *Bridge) Submit(ev Event) error {
	select {
	case <-b.done:
		return ErrStopped
	default:
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

// Stop aborts any in-flight model call, stops the worker, the chain and the
// file table. Queued events are discarded. Stop is idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		close(b.done)
		b.wg.Wait()
		b.chain.Stop()
		b.files.Close()
	})
}

func (b *Bridge) run() {
	defer b.wg.Done()
	b.startChain()
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

func (b *Bridge) startChain() {
	if err := b.chain.Start(b.cfg); err != nil {
		slog.Error("chain start failed", "error", err)
		b.sink.Status(codelet.Status{
			Kind:  codelet.StatusError,
			Model: codelet.ResolveModel(b.cfg),
			Error: classify(err),
		})
		return
	}
	slog.Debug("chain ready", "model", b.chain.Model())
	b.sink.Status(codelet.Status{Kind: codelet.StatusReady, Model: b.chain.Model()})
}

func (b *Bridge) handle(ev Event) {
	switch ev := ev.(type) {
	case DidOpen:
		b.files.Set(ev.File, ev.Text)
		b.status()
	case DidChange:
		b.files.Set(ev.File, ev.Text)
	case DidClose:
		b.files.Delete(ev.File)
	case Completion:
		b.complete(ev)
	case StatusRequest:
		b.status()
	case Reconfigure:
		b.reconfigure(ev.Config)
	default:
		slog.Error("unhandled event", "event", ev)
	}
}

// status reports the model name, or the error that keeps the chain from being ready.
func (b *Bridge) status() {
	if b.chain.State() == chain.Ready {
		b.sink.Status(codelet.Status{Kind: codelet.StatusInfo, Model: b.chain.Model()})
		return
	}
	err := b.chain.Err()
	if err == nil {
		err = chain.ErrNotReady
	}
	b.sink.Status(codelet.Status{
		Kind:  codelet.StatusError,
		Model: codelet.ResolveModel(b.cfg),
		Error: classify(err),
	})
}

func (b *Bridge) reconfigure(cfg *codelet.Config) {
	if cfg == nil {
		return
	}
	b.cfg = cfg
	b.limiter.SetLimit(limitFor(cfg.Generation.RequestsPerMinute))
	if err := b.chain.Reconfigure(cfg); err != nil {
		slog.Error("reconfigure failed", "error", err)
		b.sink.Status(codelet.Status{
			Kind:  codelet.StatusError,
			Model: codelet.ResolveModel(cfg),
			Error: classify(err),
		})
		return
	}
	slog.Info("reconfigured", "model", codelet.ResolveModel(cfg), "language", cfg.Completion.Language)
	b.status()
}

func (b *Bridge) complete(ev Completion) {
	logger := slog.With("request_id", ev.RequestID, "file", ev.File)

	text, ok := b.files.Get(ev.File)
	if !ok {
		err := errors.Wrapf(ErrFileNotOpen, "%s", ev.File)
		logger.Error("completion requested for unopened file", "error", err)
		b.reply(ev.RequestID, nil, classify(err))
		return
	}

	if b.chain.State() != chain.Ready {
		err := b.chain.Err()
		if err == nil {
			err = chain.ErrNotReady
		} else {
			err = errors.Mark(err, chain.ErrNotReady)
		}
		logger.Warn("completion requested before chain is ready", "error", err)
		e := classify(err)
		b.sink.Status(codelet.Status{Kind: codelet.StatusError, Model: codelet.ResolveModel(b.cfg), Error: e})
		b.reply(ev.RequestID, nil, e)
		return
	}

	if b.cfg.Completion.RedactSecrets {
		text = redact.Text(text, b.cfg.Completion.Language)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.Generation.Timeout())
	defer cancel()

	start := time.Now()
	suggestions, err := b.suggest(ctx, text)
	if err != nil {
		if b.ctx.Err() != nil {
			// Stopping; nobody is waiting for the result.
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.Mark(err, context.DeadlineExceeded)
		}
		logger.Warn("completion failed", "error", err, "elapsed", time.Since(start))
		e := classify(err)
		b.sink.Status(codelet.Status{Kind: codelet.StatusError, Model: b.chain.Model(), Error: e})
		b.reply(ev.RequestID, nil, e)
		return
	}

	logger.Debug("completion done", "suggestions", len(suggestions), "elapsed", time.Since(start))
	if len(suggestions) == 0 {
		b.sink.Status(codelet.Status{
			Kind:  codelet.StatusInfo,
			Model: b.chain.Model(),
			Error: &codelet.Error{Code: codelet.CodeNoSuggestions, Message: codelet.MessageNoSuggestions},
		})
	}
	b.reply(ev.RequestID, suggest.Items(suggestions), nil)
}

func (b *Bridge) suggest(ctx context.Context, text string) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "rate limit"), chain.ErrRemote)
	}
	raw, err := b.chain.Invoke(ctx, text)
	if err != nil {
		return nil, err
	}
	return suggest.Parse(raw)
}

func (b *Bridge) reply(id int, items []codelet.CompletionItem, e *codelet.Error) {
	if items == nil {
		items = []codelet.CompletionItem{}
	}
	b.sink.Result(codelet.CompletionResult{
		Type:      codelet.TypeCompletion,
		RequestID: id,
		Params:    items,
		Error:     e,
	})
}

// classify maps an error onto the wire error code and the status message
// shown to the user.
func classify(err error) *codelet.Error {
	switch {
	case errors.Is(err, ErrFileNotOpen):
		return &codelet.Error{Code: codelet.CodeFileNotOpen, Message: err.Error()}
	case errors.Is(err, chain.ErrNotReady):
		msg := codelet.MessageUnexpected
		if errors.Is(err, chain.ErrMissingCredential) {
			msg = codelet.MessageMissingAPIKey
		}
		return &codelet.Error{Code: codelet.CodeNotReady, Message: msg}
	case errors.Is(err, chain.ErrMissingCredential):
		return &codelet.Error{Code: codelet.CodeCredential, Message: codelet.MessageMissingAPIKey}
	case errors.Is(err, context.DeadlineExceeded):
		return &codelet.Error{Code: codelet.CodeTimeout, Message: codelet.MessageUnexpected}
	case errors.Is(err, suggest.ErrMalformedResponse):
		return &codelet.Error{Code: codelet.CodeMalformedResponse, Message: codelet.MessageNoSuggestions}
	case errors.Is(err, chain.ErrRemote):
		return &codelet.Error{Code: codelet.CodeAPIError, Message: codelet.MessageUnexpected}
	default:
		return &codelet.Error{Code: codelet.CodeConfigError, Message: codelet.MessageUnexpected}
	}
}
