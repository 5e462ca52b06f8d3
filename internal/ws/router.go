package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// commandHandler serves a slash command; arg is the rest of the line.
type commandHandler func(ctx context.Context, s *session, arg string) error

// internal (untyped) control handler signature.
type rawHandler func(ctx context.Context, s *session, frame json.RawMessage) error

// Router maps slash commands and JSON control types to handlers.
type Router struct {
	mu       sync.RWMutex
	exact    map[string]commandHandler // "/create"
	withArg  map[string]commandHandler // "/join <arg>"
	controls map[string]rawHandler     // {"type": "..."}
}

func NewRouter() *Router {
	return &Router{
		exact:    make(map[string]commandHandler),
		withArg:  make(map[string]commandHandler),
		controls: make(map[string]rawHandler),
	}
}

// Command binds a command that must be sent on its own, with no argument.
func (r *Router) Command(cmd string, h commandHandler) {
	r.register(r.exact, cmd, h)
}

// CommandWithArg binds a command of the form "<cmd> <arg>".
func (r *Router) CommandWithArg(cmd string, h commandHandler) {
	r.register(r.withArg, cmd, h)
}

func (r *Router) register(m map[string]commandHandler, cmd string, h commandHandler) {
	if !strings.HasPrefix(cmd, "/") {
		panic("ws router: command must start with /")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m[cmd] = h
}

// Control binds a JSON control type to a strongly-typed handler.
func Control[Req any](
	r *Router,
	typ string,
	h func(ctx context.Context, s *session, req Req) error,
) {
	if typ == "" {
		panic("ws router: empty control type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.controls[typ] = func(ctx context.Context, s *session, frame json.RawMessage) error {
		var req Req
		if err := json.Unmarshal(frame, &req); err != nil {
			zap.L().Debug("router.bad_control_body", zap.String("type", typ), zap.Error(err))
			return nil
		}
		return h(ctx, s, req)
	}
}

// dispatch reports whether text was consumed as a command or control frame.
// Anything it does not consume is a chat message.
func (r *Router) dispatch(ctx context.Context, s *session, text string) (bool, error) {
	if isControlFrame(text) {
		return true, r.dispatchControl(ctx, s, json.RawMessage(text))
	}
	h, arg, ok := r.lookup(text)
	if !ok {
		return false, nil
	}
	return true, h(ctx, s, arg)
}

func (r *Router) lookup(text string) (commandHandler, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.exact[text]; ok {
		return h, "", true
	}
	if cmd, arg, found := strings.Cut(text, " "); found {
		if h, ok := r.withArg[cmd]; ok {
			return h, strings.TrimSpace(arg), true
		}
	}
	return nil, "", false
}

// Malformed or unknown control frames are dropped without a reply.
func (r *Router) dispatchControl(ctx context.Context, s *session, frame json.RawMessage) error {
	var cf ControlFrame
	if err := json.Unmarshal(frame, &cf); err != nil {
		zap.L().Debug("router.malformed_control", zap.Error(err))
		return nil
	}

	r.mu.RLock()
	h, ok := r.controls[cf.Type]
	r.mu.RUnlock()
	if !ok {
		zap.L().Debug("router.unknown_control", zap.String("type", cf.Type))
		return nil
	}
	return h(ctx, s, frame)
}
