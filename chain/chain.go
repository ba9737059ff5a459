// Package chain wraps the prompt template and model client that turn file
// text into raw completion suggestions.
package chain

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	codelet "github.com/Paranoid-AF/codelet"
)

var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrNotReady is returned by Invoke when the chain is not Ready.
	ErrNotReady = errors.New("chain not ready")
	// ErrRemote marks failures of the remote model call.
	ErrRemote = errors.New("remote invocation failed")
)

// State is the lifecycle state of a Chain.
type State int

const (
	Uninitialized State = iota
	Starting
	Ready
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Input keys of the chat prompt.
const (
	keySystem = "system"
	keyText   = "text"
)

// Option configures a Chain.
type Option func(*Chain)

// WithModelFactory replaces NewModel as the source of model clients.
func WithModelFactory(f ModelFactory) Option {
	return func(c *Chain) { c.factory = f }
}

// WithPromptLoader sets the function that returns the custom prompt template.
// It is called on every Start and Reconfigure.
func WithPromptLoader(f func() string) Option {
	return func(c *Chain) { c.loadPrompt = f }
}

// WithBudget sets the token budget used to trim file text.
func WithBudget(b *Budget) Option {
	return func(c *Chain) { c.budget = b }
}

// Chain is a prompt template plus a model client with a
// Uninitialized → Starting → Ready → Stopped lifecycle. A failed start leaves
// the chain Stopped with the error recorded; it is not retried.
type Chain struct {
	factory    ModelFactory
	loadPrompt func() string
	budget     *Budget

	mu       sync.Mutex
	state    State
	err      error
	cfg      *codelet.Config
	ident    identity
	model    llms.Model
	prompt   *prompts.ChatPromptTemplate
	system   string
}

// New creates an uninitialized Chain.
func New(opts ...Option) *Chain {
	c := &Chain{
		factory:    NewModel,
		loadPrompt: codelet.LoadCustomPrompt,
		budget:     NewBudget(DefaultEncoding),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that stopped the chain, if any.
func (c *Chain) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Model returns the resolved model name of the active configuration.
func (c *Chain) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return ""
	}
	return c.ident.model
}

// Start builds the prompt and model client. Starting a Ready chain is a no-op.
func (c *Chain) Start(cfg *codelet.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Ready || c.state == Starting {
		return nil
	}
	c.state = Starting
	return c.buildLocked(cfg, true)
}

// Stop moves the chain to Stopped. It is idempotent.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Stopped {
		return
	}
	c.state = Stopped
	c.err = nil
	c.model = nil
	c.prompt = nil
}

// Reconfigure applies cfg. The prompt is always rebuilt; the model client is
// rebuilt only when the backend, model, base URL or key changed. A chain that
// stopped on an error is started again with the new configuration. A chain
// that was never started or was stopped explicitly only records cfg.
func (c *Chain) Reconfigure(cfg *codelet.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == Ready:
		return c.buildLocked(cfg, identityOf(cfg) != c.ident)
	case c.state == Stopped && c.err != nil:
		c.state = Starting
		return c.buildLocked(cfg, true)
	default:
		c.cfg = cfg
		c.ident = identityOf(cfg)
		return nil
	}
}

func (c *Chain) buildLocked(cfg *codelet.Config, newClient bool) error {
	c.cfg = cfg
	c.ident = identityOf(cfg)
	c.system = RenderSystemPrompt(c.loadPrompt(), cfg.Completion)

	model := c.model
	if newClient || model == nil {
		m, err := c.factory(cfg)
		if err != nil {
			c.state = Stopped
			c.err = err
			c.model = nil
			c.prompt = nil
			return err
		}
		model = m
		slog.Info("model client ready", "backend", cfg.Generation.Backend, "model", c.ident.model)
	}

	prompt := prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate("{{."+keySystem+"}}", []string{keySystem}),
		prompts.NewHumanMessagePromptTemplate("{{."+keyText+"}}", []string{keyText}),
	})
	c.model = model
	c.prompt = &prompt
	c.state = Ready
	c.err = nil
	return nil
}

// Invoke runs the chain on text and returns the model's raw answer. The
// system instructions and the file text go to the model as separate system
// and human messages. Errors from the model are marked with ErrRemote;
// calling Invoke on a chain that is not Ready returns an error marked with
// ErrNotReady that also wraps the error that stopped it.
func (c *Chain) Invoke(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	if c.state != Ready {
		err := c.err
		state := c.state
		c.mu.Unlock()
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "chain %s", state), ErrNotReady)
		}
		return "", errors.Wrapf(ErrNotReady, "chain %s", state)
	}
	model := c.model
	prompt := c.prompt
	system := c.system
	gen := c.cfg.Generation
	maxPrompt := c.cfg.Completion.MaxPromptTokens
	c.mu.Unlock()

	text = c.budget.Trim(text, maxPrompt)

	chat, err := prompt.FormatMessages(map[string]any{
		keySystem: system,
		keyText:   text,
	})
	if err != nil {
		return "", errors.Wrap(err, "format prompt")
	}
	messages := make([]llms.MessageContent, 0, len(chat))
	for _, m := range chat {
		messages = append(messages, llms.TextParts(m.GetType(), m.GetContent()))
	}

	opts := []llms.CallOption{llms.WithTemperature(gen.Temperature)}
	if gen.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(gen.MaxTokens))
	}
	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "invoke model"), ErrRemote)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Mark(errors.New("model returned no choices"), ErrRemote)
	}
	return resp.Choices[0].Content, nil
}
