package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-drift/testengine/pkg/query"
)

// debugServer exposes engine state over HTTP for external tooling.
type debugServer struct {
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// publishedState is the copy of engine state the debug handlers read. The
// engine refreshes it between frames; handlers never touch live state.
type publishedState struct {
	active  *Context
	frame   int
	running bool
	tests   []TestSummary
	tasks   []query.TaskSnapshot
}

// TestSummary is the JSON form of a registered test.
type TestSummary struct {
	Category   string  `json:"category"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Source     string  `json:"source,omitempty"`
	RunID      string  `json:"runId,omitempty"`
	Frames     int     `json:"frames,omitempty"`
	DurationMs float64 `json:"durationMs,omitempty"`
	FirstError string  `json:"firstError,omitempty"`
}

// LocateTask is the JSON form of a pending or filled locate task.
type LocateTask struct {
	ID            string     `json:"id"`
	Label         string     `json:"label,omitempty"`
	FrameCount    int        `json:"frameCount"`
	Filled        bool       `json:"filled"`
	TimestampMain int        `json:"timestampMain,omitempty"`
	Status        uint32     `json:"status,omitempty"`
	Rect          [4]float64 `json:"rect"`
	RefCount      int        `json:"refCount,omitempty"`
}

func (e *Engine) setActive(ctx *Context) {
	e.mu.Lock()
	e.published.active = ctx
	e.mu.Unlock()
}

// publish refreshes the state served by the debug server.
func (e *Engine) publish() {
	tests := make([]TestSummary, len(e.tests))
	for i, t := range e.tests {
		tests[i] = TestSummary{
			Category:   t.Category,
			Name:       t.Name,
			Status:     t.Status.String(),
			RunID:      t.RunID,
			Frames:     t.Frames,
			DurationMs: float64(t.Duration.Microseconds()) / 1000,
			FirstError: t.FirstError,
		}
		if t.SourceFile != "" {
			tests[i].Source = t.SourceFile + ":" + strconv.Itoa(t.SourceLine)
		}
	}
	var tasks []query.TaskSnapshot
	if e.debug != nil {
		tasks = e.tracker.Snapshot()
	}
	e.mu.Lock()
	e.published.frame = e.frameCount
	e.published.running = e.processing
	e.published.tests = tests
	e.published.tasks = tasks
	e.mu.Unlock()
}

// StartDebugServer starts the HTTP debug server on port. Returns the actual
// port (useful when port=0 for ephemeral allocation).
func (e *Engine) StartDebugServer(port int) (int, error) {
	if e.debug == nil {
		e.debug = &debugServer{}
	}
	srv := e.debug
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.server != nil {
		return srv.listener.Addr().(*net.TCPAddr).Port, nil
	}

	// Bind listener first to fail fast on port conflicts
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("debug server listen: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/health", e.handleHealth)
	mux.HandleFunc("/tests", e.handleTests)
	mux.HandleFunc("/locate", e.handleLocate)

	server := &http.Server{Handler: mux}
	srv.server = server
	srv.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			srv.mu.Lock()
			srv.server = nil
			srv.listener = nil
			srv.mu.Unlock()
			e.logger.Error("debug server stopped", zap.Error(err))
		}
	}()

	e.publish()
	e.logger.Info("debug server listening", zap.Int("port", actualPort))
	return actualPort, nil
}

// StopDebugServer gracefully shuts down the debug server.
func (e *Engine) StopDebugServer() {
	if e.debug == nil {
		return
	}
	srv := e.debug
	srv.mu.Lock()
	server := srv.server
	srv.server = nil
	srv.listener = nil
	srv.mu.Unlock()

	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e.mu.Lock()
	resp := struct {
		Status  string `json:"status"`
		Frame   int    `json:"frame"`
		Running bool   `json:"running"`
	}{"ok", e.published.frame, e.published.running}
	e.mu.Unlock()
	writeJSON(w, resp)
}

// handleTests returns every registered test with its last result.
// ?status=error keeps only tests in that status.
func (e *Engine) handleTests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e.mu.Lock()
	tests := e.published.tests
	e.mu.Unlock()

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]TestSummary, 0, len(tests))
		for _, t := range tests {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tests = filtered
	}
	writeJSON(w, struct {
		Tests []TestSummary `json:"tests"`
	}{tests})
}

// handleLocate returns the locate tasks as of the last frame.
func (e *Engine) handleLocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	e.mu.Lock()
	snap := e.published.tasks
	frame := e.published.frame
	e.mu.Unlock()

	tasks := make([]LocateTask, len(snap))
	for i, s := range snap {
		rc := s.Result.RectClipped
		tasks[i] = LocateTask{
			ID:            fmt.Sprintf("0x%08X", uint32(s.ID)),
			Label:         s.Label,
			FrameCount:    s.FrameCount,
			Filled:        s.Filled,
			TimestampMain: s.Result.TimestampMain,
			Status:        uint32(s.Result.StatusFlags),
			Rect:          [4]float64{rc.Left, rc.Top, rc.Right, rc.Bottom},
			RefCount:      s.Result.RefCount,
		}
	}
	writeJSON(w, struct {
		Frame int          `json:"frame"`
		Tasks []LocateTask `json:"tasks"`
	}{frame, tasks})
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
