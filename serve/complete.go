package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/bridge"
)

// CompleteCmd runs a single completion for a file, for trying out a model or
// prompt without an editor.
type CompleteCmd struct {
	File     string `arg:"" type:"existingfile" help:"Source file to complete"`
	Language string `help:"Language named in the prompt (default: completion.language)"`
	Model    string `help:"Model to use (default: generation.model)"`
}

// Run executes the complete command.
func (c *CompleteCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if c.Language != "" {
		cfg.Completion.Language = c.Language
	}
	if c.Model != "" {
		cfg.Generation.Model = c.Model
	}
	text, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	report, err := completeOnce(cfg, c.File, string(text), defaultBridgeFactory)
	if err != nil {
		return err
	}
	return writeReport(os.Stdout, report)
}

// collectSink gathers the single result of a one-shot completion.
type collectSink struct {
	result chan codelet.CompletionResult

	mu     sync.Mutex
	status []codelet.Status
}

func (s *collectSink) Result(res codelet.CompletionResult) {
	s.result <- res
}

func (s *collectSink) Status(st codelet.Status) {
	s.mu.Lock()
	s.status = append(s.status, st)
	s.mu.Unlock()
}

// report is the TOML document printed by the complete command.
type report struct {
	Request     requestEntry      `toml:"request"`
	Suggestions []suggestionEntry `toml:"suggestion"`
	Error       *errorEntry       `toml:"error,omitempty"`
	Status      []string          `toml:"status,omitempty"`
}

type requestEntry struct {
	Timestamp time.Time `toml:"timestamp"`
	File      string    `toml:"file"`
	Language  string    `toml:"language"`
	Model     string    `toml:"model"`
	Backend   string    `toml:"backend"`
	ElapsedMS int64     `toml:"elapsed_ms"`
}

type suggestionEntry struct {
	Rank int    `toml:"rank"`
	Text string `toml:"text"`
}

type errorEntry struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

func completeOnce(cfg *codelet.Config, file, text string, factory BridgeFactory) (*report, error) {
	sink := &collectSink{result: make(chan codelet.CompletionResult, 1)}
	b := factory(cfg, sink)
	b.Start()
	defer b.Stop()

	start := time.Now()
	for _, ev := range []bridge.Event{
		bridge.DidOpen{File: file, Text: text},
		bridge.Completion{RequestID: 1, File: file},
	} {
		if err := b.Submit(ev); err != nil {
			return nil, err
		}
	}

	var res codelet.CompletionResult
	select {
	case res = <-sink.result:
	case <-time.After(cfg.Generation.Timeout() + completionSlack):
		return nil, fmt.Errorf("no completion result after %s", cfg.Generation.Timeout()+completionSlack)
	}

	r := &report{
		Request: requestEntry{
			Timestamp: start.UTC().Truncate(time.Second),
			File:      file,
			Language:  cfg.Completion.Language,
			Model:     codelet.ResolveModel(cfg),
			Backend:   cfg.Generation.Backend,
			ElapsedMS: time.Since(start).Milliseconds(),
		},
		Suggestions: make([]suggestionEntry, 0, len(res.Params)),
	}
	for _, it := range res.Params {
		r.Suggestions = append(r.Suggestions, suggestionEntry{Rank: it.SortText, Text: it.InsertText})
	}
	if res.Error != nil {
		r.Error = &errorEntry{Code: res.Error.Code, Message: res.Error.Message}
	}
	sink.mu.Lock()
	for _, st := range sink.status {
		if st.Error != nil {
			r.Status = append(r.Status, st.Error.Message)
		}
	}
	sink.mu.Unlock()
	return r, nil
}

func writeReport(w io.Writer, r *report) error {
	return toml.NewEncoder(w).Encode(r)
}
