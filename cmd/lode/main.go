// lode is the command-line client for a running lodestone service.
//
// Usage:
//
//	lode search <query>      search the knowledge base
//	lode find <query>        deep search (recursive directory retrieval)
//	lode add <path>          add a file or directory to the knowledge base
//	lode remember <text>     store a free-form note
//	lode ls [uri]            list directory contents
//	lode read <uri>          read resource content
//	lode abstract <uri>      show a resource abstract
//	lode sessions            list recorded sessions
//	lode status              show service status
//
// The service address comes from --addr or LODESTONE_ADDR.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const defaultAddr = "http://127.0.0.1:8080"

const usage = `Usage:
  lode search <query>      search the knowledge base
  lode find <query>        deep search (recursive directory retrieval)
  lode add <path>          add a file or directory to the knowledge base
  lode remember <text>     store a free-form note
  lode ls [uri]            list directory contents
  lode read <uri>          read resource content
  lode abstract <uri>      show a resource abstract
  lode sessions            list recorded sessions
  lode status              show service status

Flags:
      --addr string   service base URL (default %q, env LODESTONE_ADDR)
      --limit int     max results for search and find (default 10)
`

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string) (map[string]any, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("API unavailable: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func (c *client) post(path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("API unavailable: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return out, nil
}

// printField prints the named field of the response, or its error field.
func printField(out map[string]any, field string) {
	if v, ok := out[field].(string); ok {
		fmt.Println(v)
		return
	}
	if v, ok := out["error"].(string); ok {
		fmt.Println(v)
		return
	}
	fmt.Println("unexpected response")
}

func main() {
	flags := pflag.NewFlagSet("lode", pflag.ExitOnError)
	addr := flags.String("addr", "", "service base URL")
	limit := flags.Int("limit", 10, "max results for search and find")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usage, defaultAddr)
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	base := defaultAddr
	if v := os.Getenv("LODESTONE_ADDR"); v != "" {
		base = v
	}
	if *addr != "" {
		base = *addr
	}
	base = strings.TrimSuffix(base, "/")

	args := flags.Args()
	if len(args) == 0 || args[0] == "help" {
		flags.Usage()
		return
	}

	cmd := args[0]
	rest := strings.Join(args[1:], " ")

	c := &client{base: base, http: &http.Client{Timeout: 30 * time.Second}}

	var (
		out map[string]any
		err error
	)
	field := "result"

	switch cmd {
	case "search":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: lode search <query>")
			os.Exit(2)
		}
		out, err = c.post("/api/kb/search", map[string]any{"query": rest, "limit": *limit})

	case "find":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: lode find <query>")
			os.Exit(2)
		}
		out, err = c.post("/api/kb/find", map[string]any{"query": rest, "limit": *limit})

	case "add":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: lode add <path>")
			os.Exit(2)
		}
		// Ingestion can be slow; give the request the server's budget.
		c.http.Timeout = 150 * time.Second
		out, err = c.post("/api/kb/add", map[string]any{"path": rest})

	case "remember":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: lode remember <text>")
			os.Exit(2)
		}
		out, err = c.post("/api/kb/memory", map[string]any{"content": rest})

	case "ls":
		out, err = c.get("/api/kb/ls?uri=" + url.QueryEscape(rest))

	case "read":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: lode read <uri>")
			os.Exit(2)
		}
		out, err = c.get("/api/kb/read?uri=" + url.QueryEscape(rest))

	case "abstract":
		if rest == "" {
			fmt.Fprintln(os.Stderr, "usage: lode abstract <uri>")
			os.Exit(2)
		}
		out, err = c.get("/api/kb/abstract?uri=" + url.QueryEscape(rest))

	case "sessions":
		out, err = c.get("/api/kb/sessions")

	case "status":
		out, err = c.get("/api/kb/status")
		field = "status"

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		flags.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printField(out, field)
}
