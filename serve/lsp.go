package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/bridge"
)

const lspName = "codelet"

// completionSlack is added to the model timeout when waiting for a result.
const completionSlack = 2 * time.Second

// LSPCmd serves the Language Server Protocol.
type LSPCmd struct {
	Listen string `help:"Serve LSP over websocket on this address instead of stdio (e.g. 127.0.0.1:7777)"`
	Watch  bool   `help:"Reload when the config file or prompt changes" default:"true" negatable:""`
}

// Run executes the lsp command.
func (c *LSPCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	sess := newSessions(cfg, nil)
	defer sess.stopAll()

	if c.Watch {
		if w, err := NewConfigWatcher(cli.configPath(), sess.Reload); err != nil {
			slog.Warn("config watcher disabled", "error", err)
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	if c.Listen == "" {
		ls := newLSPSession(sess)
		defer ls.Close()
		server := glspserver.NewServer(ls.handler(), lspName, false)
		return server.RunStdio()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}
		slog.Info("lsp client connected", "remote", r.RemoteAddr)
		ls := newLSPSession(sess)
		defer ls.Close()
		server := glspserver.NewServer(ls.handler(), lspName, false)
		server.ServeWebSocket(conn)
		slog.Info("lsp client disconnected", "remote", r.RemoteAddr)
	})
	slog.Info("serving lsp over websocket", "addr", c.Listen)
	return http.ListenAndServe(c.Listen, mux)
}

// lspSession adapts one LSP client onto a bridge. Request ids are allocated
// locally; completion handlers block until the keyed result arrives.
type lspSession struct {
	sessions *sessions
	bridge   *bridge.Bridge
	nextID   atomic.Int64

	mu      sync.Mutex
	pending map[int]chan codelet.CompletionResult
	notify  glsp.NotifyFunc
}

func newLSPSession(s *sessions) *lspSession {
	ls := &lspSession{
		sessions: s,
		pending:  make(map[int]chan codelet.CompletionResult),
	}
	ls.bridge = s.open(ls)
	return ls
}

// Close stops the session's bridge.
func (ls *lspSession) Close() {
	ls.sessions.close(ls.bridge)
}

func (ls *lspSession) handler() *protocol.Handler {
	return &protocol.Handler{
		Initialize:             ls.initialize,
		Initialized:            ls.initialized,
		Shutdown:               ls.shutdown,
		TextDocumentDidOpen:    ls.didOpen,
		TextDocumentDidChange:  ls.didChange,
		TextDocumentDidClose:   ls.didClose,
		TextDocumentCompletion: ls.completion,
	}
}

// Result implements bridge.Sink.
func (ls *lspSession) Result(res codelet.CompletionResult) {
	ls.mu.Lock()
	ch, ok := ls.pending[res.RequestID]
	delete(ls.pending, res.RequestID)
	ls.mu.Unlock()
	if !ok {
		slog.Debug("dropping result for abandoned request", "request_id", res.RequestID)
		return
	}
	ch <- res
}

// Status implements bridge.Sink. Errors are shown to the user; everything
// else goes to the client's log.
func (ls *lspSession) Status(st codelet.Status) {
	ls.mu.Lock()
	notify := ls.notify
	ls.mu.Unlock()
	if notify == nil {
		return
	}
	if st.Kind == codelet.StatusError && st.Error != nil {
		notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
			Type:    protocol.MessageTypeWarning,
			Message: fmt.Sprintf("%s: %s", lspName, st.Error.Message),
		})
		return
	}
	msg := fmt.Sprintf("%s: %s", lspName, st.Model)
	if st.Error != nil {
		msg += " (" + st.Error.Message + ")"
	}
	notify(protocol.ServerWindowLogMessage, protocol.LogMessageParams{
		Type:    protocol.MessageTypeInfo,
		Message: msg,
	})
}

func (ls *lspSession) remember(ctx *glsp.Context) {
	if ctx == nil || ctx.Notify == nil {
		return
	}
	ls.mu.Lock()
	ls.notify = ctx.Notify
	ls.mu.Unlock()
}

func (ls *lspSession) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	ls.remember(ctx)
	if params.ClientInfo != nil {
		slog.Info("lsp client initializing", "client", params.ClientInfo.Name)
	}

	syncKind := protocol.TextDocumentSyncKindFull
	openClose := true
	version := Version
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			CompletionProvider: &protocol.CompletionOptions{},
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: &openClose,
				Change:    &syncKind,
			},
		},
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &version,
		},
	}, nil
}

func (ls *lspSession) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	ls.remember(ctx)
	return nil
}

func (ls *lspSession) shutdown(*glsp.Context) error {
	slog.Info("lsp client shutting down")
	ls.Close()
	return nil
}

func (ls *lspSession) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	ls.remember(ctx)
	return ls.bridge.Submit(bridge.DidOpen{
		File: string(params.TextDocument.URI),
		Text: params.TextDocument.Text,
	})
}

func (ls *lspSession) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	ls.remember(ctx)
	// Full document sync: the last whole-content change wins.
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			if err := ls.bridge.Submit(bridge.DidChange{
				File: string(params.TextDocument.URI),
				Text: whole.Text,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ls *lspSession) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	ls.remember(ctx)
	return ls.bridge.Submit(bridge.DidClose{File: string(params.TextDocument.URI)})
}

func (ls *lspSession) completion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	ls.remember(ctx)
	id := int(ls.nextID.Add(1))
	ch := make(chan codelet.CompletionResult, 1)

	ls.mu.Lock()
	ls.pending[id] = ch
	ls.mu.Unlock()

	if err := ls.bridge.Submit(bridge.Completion{RequestID: id, File: string(params.TextDocument.URI)}); err != nil {
		ls.forget(id)
		return nil, err
	}

	// glsp runs handlers on the connection's read loop: later messages from
	// this client wait until the result arrives or wait elapses.
	wait := ls.sessions.config().Generation.Timeout() + completionSlack
	select {
	case res := <-ch:
		return toLSPItems(res.Params), nil
	case <-time.After(wait):
		ls.forget(id)
		slog.Warn("completion result not received in time", "request_id", id, "wait", wait)
		return []protocol.CompletionItem{}, nil
	}
}

func (ls *lspSession) forget(id int) {
	ls.mu.Lock()
	delete(ls.pending, id)
	ls.mu.Unlock()
}

// toLSPItems converts items, encoding the rank as a zero-padded sortText so
// clients that sort lexically keep the model's order.
func toLSPItems(items []codelet.CompletionItem) []protocol.CompletionItem {
	out := make([]protocol.CompletionItem, 0, len(items))
	kind := protocol.CompletionItemKindText
	for _, it := range items {
		insert := it.InsertText
		sortText := fmt.Sprintf("%04d", it.SortText)
		detail := it.Provider
		out = append(out, protocol.CompletionItem{
			Label:         it.Label,
			Kind:          &kind,
			Detail:        &detail,
			InsertText:    &insert,
			SortText:      &sortText,
			Documentation: it.Documentation,
		})
	}
	return out
}
