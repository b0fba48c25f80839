package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/logger"
)

// Ensure Gateway implements the interface.
var _ driven.ExtractorLifecycle = (*Gateway)(nil)

const (
	// errorMarker prefixes extractor lines reporting a failed parse.
	errorMarker = "[!]"

	// diagnosticMarker prefixes detail lines following an error line.
	diagnosticMarker = "  >"

	defaultQueueSize = 256
)

// Config configures a Gateway.
type Config struct {
	// Command is the extractor executable and arguments.
	Command []string

	// Dir is the working directory of the child process.
	Dir string

	// Env is appended to the inherited environment of the child.
	Env []string

	// Timeout is the per-request deadline. Defaults to 5s.
	Timeout time.Duration

	// QueueSize bounds pending requests. Defaults to 256.
	QueueSize int
}

// Option configures optional Gateway behaviour.
type Option func(*Gateway)

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(g *Gateway) { g.launch = l }
}

type request struct {
	id   string
	text string
}

// Gateway serialises extraction requests from many goroutines onto one
// long-lived extractor process speaking a line protocol:
//
//	request:  <id>,<base64 utf-8 query>\n
//	response: one line of JSON, or a line starting with "[!]" on failure
//
// A single worker goroutine owns the process. Each Submit waits on its
// own channel keyed by request id, so callers never see each other's
// results.
type Gateway struct {
	cfg    Config
	launch Launcher

	requests chan request

	mu      sync.Mutex
	waiters map[string]chan map[string]any
	current Process
	stop    chan struct{}
	done    chan struct{}
}

// New creates a gateway. Start must be called before Submit can succeed.
func New(cfg Config, opts ...Option) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = domain.DefaultExtractorTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	g := &Gateway{
		cfg:      cfg,
		launch:   ExecLauncher,
		requests: make(chan request, cfg.QueueSize),
		waiters:  make(map[string]chan map[string]any),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start launches the worker goroutine. It must be called at most once
// per Stop; a second call while running starts a second worker that
// races the first over the request queue.
func (g *Gateway) Start() {
	stop := make(chan struct{})
	done := make(chan struct{})

	g.mu.Lock()
	g.stop = stop
	g.done = done
	g.mu.Unlock()

	go g.run(stop, done)
}

// Stop signals the worker to exit, kills the child process and waits for
// the worker to finish. Stop without Start is a no-op.
func (g *Gateway) Stop() {
	g.mu.Lock()
	stop, done := g.stop, g.done
	if stop == nil {
		g.mu.Unlock()
		return
	}
	g.stop, g.done = nil, nil
	close(stop)
	proc := g.current
	g.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	<-done
}

// Submit sends text to the extractor and waits for its properties.
// An empty id is replaced with a generated one. On timeout, context
// cancellation or an unavailable worker, an empty map is returned.
// Keys of the result are lower case and the echoed id is removed.
func (g *Gateway) Submit(ctx context.Context, text, id string) map[string]any {
	if id == "" {
		id = uuid.NewString()
	}

	ch := make(chan map[string]any, 1)
	g.mu.Lock()
	g.waiters[id] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		if g.waiters[id] == ch {
			delete(g.waiters, id)
		}
		g.mu.Unlock()
	}()

	timer := time.NewTimer(g.cfg.Timeout)
	defer timer.Stop()

	select {
	case g.requests <- request{id: id, text: text}:
	case <-timer.C:
		logger.Debug("%v: queue full for %s", domain.ErrExtractionTimeout, id)
		return map[string]any{}
	case <-ctx.Done():
		return map[string]any{}
	}

	select {
	case res := <-ch:
		return res
	case <-timer.C:
		logger.Debug("%v: no response for %s after %s", domain.ErrExtractionTimeout, id, g.cfg.Timeout)
		return map[string]any{}
	case <-ctx.Done():
		return map[string]any{}
	}
}

// run is the worker loop. It owns the child process.
func (g *Gateway) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var proc Process
	defer func() {
		if proc != nil {
			_ = proc.Kill()
		}
		g.setCurrent(nil)
	}()

	for {
		select {
		case <-stop:
			return
		case req := <-g.requests:
			if proc != nil && proc.Exited() {
				logger.Debug("extractor exited, restarting")
				_ = proc.Kill()
				proc = nil
			}
			if proc == nil {
				p, err := g.launch(g.cfg)
				if err != nil {
					logger.Error("%v: %v", domain.ErrExtractionProcess, err)
					return
				}
				if !g.adopt(stop, p) {
					_ = p.Kill()
					return
				}
				proc = p
			}

			if !g.exchange(proc, req) {
				_ = proc.Kill()
				proc = nil
				g.setCurrent(nil)
				select {
				case <-stop:
					return
				default:
				}
			}
		}
	}
}

// exchange writes one request and reads lines until the response tagged
// with its id arrives. Responses tagged with another id go to that
// request's waiter, or are dropped. It reports false when the process
// pipes failed and the process must be replaced.
func (g *Gateway) exchange(proc Process, req request) bool {
	line := req.id + "," + base64.StdEncoding.EncodeToString([]byte(req.text))
	if err := proc.WriteLine(line); err != nil {
		logger.Warn("extractor request %s failed: %v", req.id, err)
		return false
	}

	for {
		out, err := proc.ReadLine()
		if err != nil {
			logger.Warn("extractor response %s failed: %v", req.id, err)
			return false
		}
		if strings.TrimSpace(out) == "" || strings.HasPrefix(out, diagnosticMarker) {
			continue
		}
		id, res := parseResponse(req.id, out)
		g.deliver(id, res)
		if id == req.id {
			return true
		}
		logger.Debug("extractor answered %s while %s was pending", id, req.id)
	}
}

// parseResponse decodes a response line into the request id it answers
// and its properties. Error lines and undecodable JSON carry no id; they
// answer reqID with an invalid-query result, as does JSON without an id.
func parseResponse(reqID, line string) (string, map[string]any) {
	if strings.HasPrefix(line, errorMarker) {
		logger.Debug("extractor rejected %s: %s", reqID, line)
		return reqID, invalidResult()
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil || raw == nil {
		logger.Debug("extractor returned malformed response for %s: %q", reqID, line)
		return reqID, invalidResult()
	}

	id := reqID
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		key := strings.ToLower(k)
		if key == "id" {
			if tagged := responseID(v); tagged != "" {
				id = tagged
			}
			continue
		}
		out[key] = v
	}
	return id, out
}

func responseID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

func invalidResult() map[string]any {
	return map[string]any{"valid_query": false}
}

func (g *Gateway) deliver(id string, res map[string]any) {
	g.mu.Lock()
	ch, ok := g.waiters[id]
	g.mu.Unlock()

	if !ok {
		logger.Debug("dropping late extractor response for %s", id)
		return
	}
	select {
	case ch <- res:
	default:
		logger.Debug("dropping duplicate extractor response for %s", id)
	}
}

// adopt publishes p as the current process so Stop can kill it. It
// reports false if Stop has already been called.
func (g *Gateway) adopt(stop <-chan struct{}, p Process) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	g.current = p
	return true
}

func (g *Gateway) setCurrent(p Process) {
	g.mu.Lock()
	g.current = p
	g.mu.Unlock()
}
