// Package facade exposes the knowledge-base operations as timeout-bounded
// calls over the bridge. Every method returns a human-readable string and
// never an error: timeouts and backend failures degrade to a clearly
// marked message so a caller's request path cannot be destabilized by a
// slow or broken engine.
package facade

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/lodekb/lodestone/internal/bridge"
	"github.com/lodekb/lodestone/internal/config"
	"github.com/lodekb/lodestone/internal/kb"
)

const (
	// snippetLen caps per-entry content in rendered search results.
	snippetLen = 300
	// contextSnippetLen caps per-entry content in retrieved context.
	contextSnippetLen = 500
	// readLen caps rendered resource content.
	readLen = 2000
	// maxSessions caps the rendered session list.
	maxSessions = 20
	// maxContextEntries caps memories and resources used for augmentation.
	maxContextEntries = 3
)

// Runner is the slice of the bridge the facade needs. *bridge.Bridge[*kb.Engine]
// satisfies it; tests substitute fakes.
type Runner interface {
	Do(ctx context.Context, op bridge.Operation[*kb.Engine], timeout time.Duration) (any, error)
	Ready() bool
}

// Facade renders engine results for human consumption with per-operation
// timeout budgets.
type Facade struct {
	runner   Runner
	logger   *slog.Logger
	timeouts config.Timeouts
}

// New creates a Facade over the given runner.
func New(runner Runner, timeouts config.Timeouts, logger *slog.Logger) *Facade {
	return &Facade{runner: runner, logger: logger, timeouts: timeouts}
}

// Ready reports whether the underlying engine is initialized.
func (f *Facade) Ready() bool {
	return f.runner.Ready()
}

// run submits one operation and classifies the failure modes for the
// caller: value, timed-out, or unavailable.
func (f *Facade) run(ctx context.Context, name string, timeout time.Duration, fn func(*kb.Engine) (any, error)) (any, bool, error) {
	result, err := f.runner.Do(ctx, bridge.Operation[*kb.Engine]{Name: name, Fn: fn}, timeout)
	if err == nil {
		return result, false, nil
	}
	if errors.Is(err, bridge.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return nil, true, err
	}
	f.logger.Error("knowledge base operation failed", "operation", name, "error", err)
	return nil, false, err
}

// Search matches the query against memories and resources.
func (f *Facade) Search(ctx context.Context, query string, limit int) string {
	result, timedOut, err := f.run(ctx, "search", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.Search(query, limit)
	})
	if timedOut {
		return fmt.Sprintf("search %q timed out", query)
	}
	if err != nil {
		return fmt.Sprintf("search %q unavailable", query)
	}
	return renderSearch("search", query, result.(kb.SearchResult))
}

// Find is deep search: recursive, path-aware retrieval.
func (f *Facade) Find(ctx context.Context, query string, limit int) string {
	result, timedOut, err := f.run(ctx, "find", f.timeouts.Find, func(e *kb.Engine) (any, error) {
		return e.Find(query, limit)
	})
	if timedOut {
		return fmt.Sprintf("deep search %q timed out", query)
	}
	if err != nil {
		return fmt.Sprintf("deep search %q unavailable", query)
	}
	return renderSearch("deep search", query, result.(kb.SearchResult))
}

func renderSearch(verb, query string, result kb.SearchResult) string {
	var entries []string
	for _, mem := range result.Memories {
		entries = append(entries, "[memory] "+truncate(mem.Content, snippetLen))
	}
	for _, res := range result.Resources {
		content := res.Content
		if content == "" {
			content = res.Abstract
		}
		entries = append(entries, fmt.Sprintf("[resource:%s] %s", res.URI, truncate(content, snippetLen)))
	}

	if len(entries) == 0 {
		return fmt.Sprintf("%s %q found no results (total=%d)", verb, query, result.Total)
	}
	return fmt.Sprintf("%s %q found %d results:\n\n%s", verb, query, result.Total, strings.Join(entries, "\n\n"))
}

// AddResource ingests the file or directory at path into the knowledge base.
func (f *Facade) AddResource(ctx context.Context, path string) string {
	result, timedOut, err := f.run(ctx, "add_resource", f.timeouts.Add, func(e *kb.Engine) (any, error) {
		return e.AddResource(path, true, f.timeouts.Add)
	})
	if timedOut {
		return "add resource timed out"
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Sprintf("add resource failed: %s", path)
	}

	added := result.(kb.AddResult)
	if len(added.Errors) > 0 {
		return fmt.Sprintf("add resource failed: %s", strings.Join(added.Errors, ", "))
	}
	return fmt.Sprintf("resource added: %s (status=%s)", added.RootURI, added.Status)
}

// AddMemory stores a free-form note in the knowledge base.
func (f *Facade) AddMemory(ctx context.Context, content string) string {
	result, timedOut, err := f.run(ctx, "add_memory", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.AddMemory(content)
	})
	if timedOut {
		return "add memory timed out"
	}
	if err != nil {
		return "add memory unavailable"
	}
	return fmt.Sprintf("memory stored: %s", result.(kb.Memory).ID)
}

// RecordSession stores a session record with the given title.
func (f *Facade) RecordSession(ctx context.Context, title string) string {
	result, timedOut, err := f.run(ctx, "record_session", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.RecordSession(title)
	})
	if timedOut {
		return "record session timed out"
	}
	if err != nil {
		return "record session unavailable"
	}
	return fmt.Sprintf("session recorded: %s", result.(kb.Session).ID)
}

// ListDirectory renders the entries under the given directory URI.
func (f *Facade) ListDirectory(ctx context.Context, uri string) string {
	if uri == "" {
		uri = kb.ResourceRoot
	}
	result, timedOut, err := f.run(ctx, "list_directory", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.ListDirectory(uri)
	})
	if timedOut {
		return fmt.Sprintf("list directory %s timed out", uri)
	}
	if err != nil {
		return fmt.Sprintf("list directory %s unavailable", uri)
	}

	entries := result.([]kb.DirEntry)
	if len(entries) == 0 {
		return fmt.Sprintf("directory %s is empty", uri)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		marker := "F"
		if entry.IsDir {
			marker = "D"
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s (%db)", marker, entry.Name, entry.Size))
	}
	return fmt.Sprintf("directory %s:\n%s", uri, strings.Join(lines, "\n"))
}

// Read returns the content of the resource at uri, capped for display.
func (f *Facade) Read(ctx context.Context, uri string) string {
	result, timedOut, err := f.run(ctx, "read", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.Read(uri)
	})
	if timedOut {
		return "read timed out"
	}
	if errors.Is(err, kb.ErrNotFound) {
		return fmt.Sprintf("read failed: no resource at %s", uri)
	}
	if err != nil {
		return fmt.Sprintf("read failed: %s", uri)
	}
	return truncate(result.(string), readLen)
}

// Abstract returns the abstract of the resource at uri.
func (f *Facade) Abstract(ctx context.Context, uri string) string {
	result, timedOut, err := f.run(ctx, "abstract", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.Abstract(uri)
	})
	if timedOut {
		return "abstract timed out"
	}
	if errors.Is(err, kb.ErrNotFound) {
		return fmt.Sprintf("abstract failed: no resource at %s", uri)
	}
	if err != nil {
		return fmt.Sprintf("abstract failed: %s", uri)
	}
	return result.(string)
}

// ListSessions renders the recorded sessions, most recent first.
func (f *Facade) ListSessions(ctx context.Context) string {
	result, timedOut, err := f.run(ctx, "list_sessions", f.timeouts.Read, func(e *kb.Engine) (any, error) {
		return e.ListSessions()
	})
	if timedOut {
		return "list sessions timed out"
	}
	if err != nil {
		return "list sessions unavailable"
	}

	sessions := result.([]kb.Session)
	if len(sessions) == 0 {
		return "no recorded sessions"
	}
	if len(sessions) > maxSessions {
		sessions = sessions[:maxSessions]
	}

	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, "  - "+s.ID)
	}
	return "sessions:\n" + strings.Join(lines, "\n")
}

// RetrieveContext gathers knowledge-base context for a query, for
// prompt augmentation. It returns "" on any failure: augmentation is
// strictly best-effort.
func (f *Facade) RetrieveContext(ctx context.Context, query string, limit int) string {
	if limit <= 0 {
		limit = maxContextEntries
	}
	result, _, err := f.run(ctx, "retrieve_context", f.timeouts.Retrieve, func(e *kb.Engine) (any, error) {
		return e.Search(query, limit)
	})
	if err != nil {
		return ""
	}

	found := result.(kb.SearchResult)
	var parts []string
	for i, mem := range found.Memories {
		if i >= maxContextEntries {
			break
		}
		if mem.Content != "" {
			parts = append(parts, "[memory] "+mem.Content)
		}
	}
	for i, res := range found.Resources {
		if i >= maxContextEntries {
			break
		}
		content := res.Content
		if content == "" {
			content = res.Abstract
		}
		if content == "" {
			continue
		}
		title := res.Title
		if title == "" {
			title = res.URI
		}
		parts = append(parts, fmt.Sprintf("[knowledge:%s] %s", title, truncate(content, contextSnippetLen)))
	}

	return strings.Join(parts, "\n\n")
}

// AugmentMessage prepends retrieved context to a user message. If the
// engine is unavailable or nothing relevant is found, the message is
// returned unchanged.
func (f *Facade) AugmentMessage(ctx context.Context, message string, limit int) string {
	if !f.Ready() {
		return message
	}
	retrieved := f.RetrieveContext(ctx, message, limit)
	if retrieved == "" {
		return message
	}
	return "[The following context was retrieved from the knowledge base for reference]\n" +
		retrieved +
		"\n[End of context]\n\n" +
		message
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
