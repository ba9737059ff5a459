package main

import (
	"log/slog"
	"sync"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/bridge"
)

// BridgeFactory creates the bridge for one editor session.
type BridgeFactory func(cfg *codelet.Config, sink bridge.Sink) *bridge.Bridge

func defaultBridgeFactory(cfg *codelet.Config, sink bridge.Sink) *bridge.Bridge {
	return bridge.New(cfg, sink)
}

// sessions tracks the live bridges and the configuration they share.
type sessions struct {
	newBridge BridgeFactory

	mu      sync.Mutex
	cfg     *codelet.Config
	bridges map[*bridge.Bridge]struct{}
}

func newSessions(cfg *codelet.Config, factory BridgeFactory) *sessions {
	if factory == nil {
		factory = defaultBridgeFactory
	}
	return &sessions{
		newBridge: factory,
		cfg:       cfg,
		bridges:   make(map[*bridge.Bridge]struct{}),
	}
}

// open starts a bridge for a new session.
func (s *sessions) open(sink bridge.Sink) *bridge.Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.newBridge(s.cfg, sink)
	b.Start()
	s.bridges[b] = struct{}{}
	return b
}

// close stops a session's bridge.
func (s *sessions) close(b *bridge.Bridge) {
	s.mu.Lock()
	delete(s.bridges, b)
	s.mu.Unlock()
	b.Stop()
}

func (s *sessions) config() *codelet.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reload makes cfg the configuration of new sessions and sends it to every
// live bridge through its event queue.
func (s *sessions) Reload(cfg *codelet.Config) {
	s.mu.Lock()
	s.cfg = cfg
	live := make([]*bridge.Bridge, 0, len(s.bridges))
	for b := range s.bridges {
		live = append(live, b)
	}
	s.mu.Unlock()

	for _, b := range live {
		if err := b.Submit(bridge.Reconfigure{Config: cfg}); err != nil {
			slog.Debug("skipping reload for stopped session", "error", err)
		}
	}
	slog.Info("config reloaded", "sessions", len(live), "model", codelet.ResolveModel(cfg))
}

// stopAll stops every live bridge.
func (s *sessions) stopAll() {
	s.mu.Lock()
	live := s.bridges
	s.bridges = make(map[*bridge.Bridge]struct{})
	s.mu.Unlock()
	for b := range live {
		b.Stop()
	}
}
