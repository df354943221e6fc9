package kb

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS resources (
    id         TEXT PRIMARY KEY,
    uri        TEXT NOT NULL UNIQUE,
    parent_uri TEXT NOT NULL,
    name       TEXT NOT NULL,
    title      TEXT NOT NULL,
    abstract   TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL DEFAULT '',
    is_dir     INTEGER NOT NULL DEFAULT 0,
    size       INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_parent ON resources(parent_uri)`,
	`CREATE TABLE IF NOT EXISTS memories (
    id         TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`,
}

const (
	// maxContentBytes caps how much of a file is stored and searched.
	maxContentBytes = 1 << 20
	// abstractLen is the length of the generated abstract.
	abstractLen = 200
)

// ErrNotFound is returned when a URI does not resolve to a resource.
var ErrNotFound = errors.New("resource not found")

// ErrNotInitialized is returned when the engine is used before Initialize.
var ErrNotInitialized = errors.New("engine not initialized")

// Engine is the SQLite-backed knowledge-base engine. It keeps per-call
// scratch state and must be driven from a single goroutine; see the
// package documentation.
type Engine struct {
	dbPath string
	db     *sql.DB

	// patternBuf is reused across calls to build LIKE patterns.
	patternBuf []byte
}

// NewEngine creates an engine for the database at dbPath. No I/O happens
// until Initialize.
func NewEngine(dbPath string) *Engine {
	return &Engine{dbPath: dbPath}
}

// Initialize opens the database and runs migrations. It must be called
// exactly once before any other method.
func (e *Engine) Initialize() error {
	if dir := filepath.Dir(e.dbPath); e.dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", e.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// The engine is single-caller; a second connection would only hide
	// accidental concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("create schema: %w", err)
		}
	}

	e.db = db
	return nil
}

// Close closes the underlying database connection. Safe to call if
// Initialize never ran or failed.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// likePattern builds a %query% LIKE pattern, escaping SQL wildcards.
func (e *Engine) likePattern(query string) string {
	e.patternBuf = e.patternBuf[:0]
	e.patternBuf = append(e.patternBuf, '%')
	for _, b := range []byte(query) {
		if b == '%' || b == '_' || b == '\\' {
			e.patternBuf = append(e.patternBuf, '\\')
		}
		e.patternBuf = append(e.patternBuf, b)
	}
	e.patternBuf = append(e.patternBuf, '%')
	return string(e.patternBuf)
}

// Search matches memories and resources whose content, abstract, or
// title contains the query. Total counts all matches; the returned
// slices are capped at limit each.
func (e *Engine) Search(query string, limit int) (SearchResult, error) {
	return e.search(query, limit, false)
}

// Find is deep search: in addition to Search's matching it descends into
// resource URIs, so path segments match too.
func (e *Engine) Find(query string, limit int) (SearchResult, error) {
	return e.search(query, limit, true)
}

func (e *Engine) search(query string, limit int, deep bool) (SearchResult, error) {
	if e.db == nil {
		return SearchResult{}, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 5
	}
	pattern := e.likePattern(query)

	var result SearchResult

	memWhere := `content LIKE ? ESCAPE '\'`
	if err := e.db.QueryRow("SELECT COUNT(*) FROM memories WHERE "+memWhere, pattern).Scan(&result.Total); err != nil {
		return SearchResult{}, fmt.Errorf("count memories: %w", err)
	}

	resWhere := `is_dir = 0 AND (content LIKE ? ESCAPE '\' OR abstract LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern, pattern}
	if deep {
		resWhere = `is_dir = 0 AND (content LIKE ? ESCAPE '\' OR abstract LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR uri LIKE ? ESCAPE '\')`
		args = append(args, pattern)
	}

	var resTotal int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM resources WHERE "+resWhere, args...).Scan(&resTotal); err != nil {
		return SearchResult{}, fmt.Errorf("count resources: %w", err)
	}
	result.Total += resTotal

	rows, err := e.db.Query(
		"SELECT id, content, created_at FROM memories WHERE "+memWhere+" ORDER BY created_at DESC LIMIT ?",
		pattern, limit,
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.Content, &m.CreatedAt); err != nil {
			return SearchResult{}, fmt.Errorf("scan memory: %w", err)
		}
		result.Memories = append(result.Memories, m)
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, fmt.Errorf("iterate memories: %w", err)
	}

	resRows, err := e.db.Query(
		"SELECT id, uri, title, abstract, content FROM resources WHERE "+resWhere+" ORDER BY created_at DESC LIMIT ?",
		append(args, limit)...,
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("query resources: %w", err)
	}
	defer resRows.Close()
	for resRows.Next() {
		var r Resource
		if err := resRows.Scan(&r.ID, &r.URI, &r.Title, &r.Abstract, &r.Content); err != nil {
			return SearchResult{}, fmt.Errorf("scan resource: %w", err)
		}
		result.Resources = append(result.Resources, r)
	}
	if err := resRows.Err(); err != nil {
		return SearchResult{}, fmt.Errorf("iterate resources: %w", err)
	}

	return result, nil
}

// AddMemory stores a free-form note and returns it.
func (e *Engine) AddMemory(content string) (Memory, error) {
	if e.db == nil {
		return Memory{}, ErrNotInitialized
	}
	m := Memory{ID: NewID(), Content: content, CreatedAt: time.Now().UTC()}
	if _, err := e.db.Exec(
		"INSERT INTO memories (id, content, created_at) VALUES (?, ?, ?)",
		m.ID, m.Content, m.CreatedAt,
	); err != nil {
		return Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

// AddResource ingests the file or directory at path. Directories are
// walked recursively; timeout bounds the walk, and files not reached in
// time are reported in Errors with status "partial". When wait is false,
// abstract generation is deferred (abstracts stay empty) and the status
// is "accepted" instead of "completed".
func (e *Engine) AddResource(path string, wait bool, timeout time.Duration) (AddResult, error) {
	if e.db == nil {
		return AddResult{}, ErrNotInitialized
	}

	info, err := os.Stat(path)
	if err != nil {
		return AddResult{}, fmt.Errorf("stat %s: %w", path, err)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	if !info.IsDir() {
		uri := ResourceRoot + filepath.Base(path)
		if err := e.ingestFile(path, uri, info.Size(), wait); err != nil {
			return AddResult{Status: StatusPartial, Errors: []string{err.Error()}, RootURI: uri}, nil
		}
		return AddResult{Status: ingestStatus(wait), RootURI: uri}, nil
	}

	rootURI := ResourceRoot + filepath.Base(path) + "/"
	if err := e.ensureDir(rootURI); err != nil {
		return AddResult{}, err
	}

	result := AddResult{Status: ingestStatus(wait), RootURI: rootURI}
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: ingest deadline exceeded", p))
			return fs.SkipAll
		}

		rel, relErr := filepath.Rel(path, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		uri := rootURI + filepath.ToSlash(rel)
		if d.IsDir() {
			return e.ensureDir(uri + "/")
		}

		fi, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return nil
		}
		if err := e.ingestFile(p, uri, fi.Size(), wait); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		return nil
	})
	if walkErr != nil {
		return AddResult{}, fmt.Errorf("walk %s: %w", path, walkErr)
	}

	if len(result.Errors) > 0 {
		result.Status = StatusPartial
	}
	return result, nil
}

func ingestStatus(wait bool) string {
	if wait {
		return StatusCompleted
	}
	return StatusAccepted
}

// ingestFile reads and stores one regular file under the given URI,
// replacing any existing resource at that URI.
func (e *Engine) ingestFile(path, uri string, size int64, withAbstract bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxContentBytes {
		data = data[:maxContentBytes]
	}
	content := strings.ToValidUTF8(string(data), "")

	abstract := ""
	if withAbstract {
		abstract = makeAbstract(content)
	}

	name := filepath.Base(path)
	if _, err := e.db.Exec(
		`INSERT INTO resources (id, uri, parent_uri, name, title, abstract, content, is_dir, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(uri) DO UPDATE SET
		     abstract = excluded.abstract,
		     content = excluded.content,
		     size = excluded.size`,
		NewID(), uri, parentURI(uri), name, name, abstract, content, size, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert resource %s: %w", uri, err)
	}
	return nil
}

// ensureDir inserts directory rows for uri and all its ancestors up to
// the resource root. Directory URIs carry a trailing slash.
func (e *Engine) ensureDir(uri string) error {
	for uri != ResourceRoot && strings.HasPrefix(uri, ResourceRoot) {
		name := filepath.Base(strings.TrimSuffix(uri, "/"))
		if _, err := e.db.Exec(
			`INSERT INTO resources (id, uri, parent_uri, name, title, is_dir, created_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT(uri) DO NOTHING`,
			NewID(), uri, parentURI(uri), name, name, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("insert directory %s: %w", uri, err)
		}
		uri = parentURI(uri)
	}
	return nil
}

// parentURI returns the enclosing directory URI, with trailing slash.
func parentURI(uri string) string {
	trimmed := strings.TrimSuffix(uri, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ResourceRoot
	}
	return trimmed[:idx+1]
}

// makeAbstract derives a short abstract from content: leading
// whitespace-collapsed text capped at abstractLen runes.
func makeAbstract(content string) string {
	fields := strings.Fields(content)
	joined := strings.Join(fields, " ")
	if utf8.RuneCountInString(joined) <= abstractLen {
		return joined
	}
	runes := []rune(joined)
	return string(runes[:abstractLen])
}

// ListDirectory lists the entries directly under the given directory URI.
// An empty uri defaults to the resource root.
func (e *Engine) ListDirectory(uri string) ([]DirEntry, error) {
	if e.db == nil {
		return nil, ErrNotInitialized
	}
	if uri == "" {
		uri = ResourceRoot
	}
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}

	rows, err := e.db.Query(
		"SELECT name, is_dir, size FROM resources WHERE parent_uri = ? ORDER BY is_dir DESC, name",
		uri,
	)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %w", uri, err)
	}
	defer rows.Close()

	var entries []DirEntry
	for rows.Next() {
		var entry DirEntry
		if err := rows.Scan(&entry.Name, &entry.IsDir, &entry.Size); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Read returns the stored content of the resource at uri.
func (e *Engine) Read(uri string) (string, error) {
	if e.db == nil {
		return "", ErrNotInitialized
	}
	var content string
	err := e.db.QueryRow("SELECT content FROM resources WHERE uri = ? AND is_dir = 0", uri).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", uri, err)
	}
	return content, nil
}

// Abstract returns the stored abstract of the resource at uri,
// generating and persisting one from the content if it is missing.
func (e *Engine) Abstract(uri string) (string, error) {
	if e.db == nil {
		return "", ErrNotInitialized
	}
	var abstract, content string
	err := e.db.QueryRow("SELECT abstract, content FROM resources WHERE uri = ? AND is_dir = 0", uri).Scan(&abstract, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("abstract %s: %w", uri, err)
	}
	if abstract == "" && content != "" {
		abstract = makeAbstract(content)
		if _, err := e.db.Exec("UPDATE resources SET abstract = ? WHERE uri = ?", abstract, uri); err != nil {
			return "", fmt.Errorf("backfill abstract %s: %w", uri, err)
		}
	}
	return abstract, nil
}

// RecordSession stores a session record and returns it.
func (e *Engine) RecordSession(title string) (Session, error) {
	if e.db == nil {
		return Session{}, ErrNotInitialized
	}
	s := Session{ID: NewID(), Title: title, CreatedAt: time.Now().UTC()}
	if _, err := e.db.Exec(
		"INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)",
		s.ID, s.Title, s.CreatedAt,
	); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// ListSessions returns recorded sessions, most recent first.
func (e *Engine) ListSessions() ([]Session, error) {
	if e.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := e.db.Query("SELECT id, title, created_at FROM sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
