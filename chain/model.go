package chain

import (
	"github.com/cockroachdb/errors"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	codelet "github.com/Paranoid-AF/codelet"
)

// ModelFactory builds the model client for a configuration.
type ModelFactory func(cfg *codelet.Config) (llms.Model, error)

// NewModel builds the model client selected by cfg.Generation.Backend. The
// API key comes from the environment or the config file only.
func NewModel(cfg *codelet.Config) (llms.Model, error) {
	key := codelet.ResolveAPIKey(cfg)
	if key == "" {
		return nil, ErrMissingCredential
	}
	model := codelet.ResolveModel(cfg)
	baseURL := codelet.ResolveBaseURL(cfg)

	switch cfg.Generation.Backend {
	case "", codelet.BackendLangchain:
		opts := []lcopenai.Option{
			lcopenai.WithToken(key),
			lcopenai.WithModel(model),
		}
		if baseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(baseURL))
		}
		llm, err := lcopenai.New(opts...)
		if err != nil {
			return nil, errors.Wrap(err, "create openai client")
		}
		return llm, nil
	case codelet.BackendOpenAI:
		return NewStructured(key, model, baseURL), nil
	default:
		return nil, errors.Newf("unknown generation backend %q", cfg.Generation.Backend)
	}
}

// identity captures the settings that require a new model client when changed.
type identity struct {
	backend string
	model   string
	baseURL string
	key     string
}

func identityOf(cfg *codelet.Config) identity {
	return identity{
		backend: cfg.Generation.Backend,
		model:   codelet.ResolveModel(cfg),
		baseURL: codelet.ResolveBaseURL(cfg),
		key:     codelet.ResolveAPIKey(cfg),
	}
}
