// Package main provides the filterlog-ctl CLI for talking to a running
// filterlog server.
//
// Usage:
//
//	filterlog-ctl ping [--server http://localhost:8080]
//	filterlog-ctl kv get|put|delete <key> [value] [--server <url>]
//	filterlog-ctl kv list [--prefix <p>] [--server <url>]
//	filterlog-ctl backends [--summary] [--server <url>]
//	filterlog-ctl cat <backend>/<path> [--range bytes=0-99] [--server <url>]
//	filterlog-ctl status [--config <file>]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/warpdrive/filterlog/pkg/config"
	"github.com/warpdrive/filterlog/pkg/control"
)

const defaultServer = "http://localhost:8080"

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ping":
		runPing(os.Args[2:])
	case "kv":
		runKV(os.Args[2:])
	case "backends":
		runBackends(os.Args[2:])
	case "cat":
		runCat(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, "filterlog-ctl: filterlog admin CLI\n\n")
	fmt.Fprint(os.Stderr, "Usage:\n")
	fmt.Fprint(os.Stderr, "  filterlog-ctl <command> [flags]\n\n")
	fmt.Fprint(os.Stderr, "Commands:\n")
	fmt.Fprint(os.Stderr, "  ping      Check that the server answers\n")
	fmt.Fprint(os.Stderr, "  kv        Get, put, delete or list keys\n")
	fmt.Fprint(os.Stderr, "  backends  List configured backends\n")
	fmt.Fprint(os.Stderr, "  cat       Print an object from a backend\n")
	fmt.Fprint(os.Stderr, "  status    Show the effective configuration\n\n")
	fmt.Fprint(os.Stderr, "Use \"filterlog-ctl <command> --help\" for more information about a command.\n")
}

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("server", defaultServer, "Base URL of the filterlog server")
}

// call sends one request and returns the body of a 2xx response.
func call(method, base, path string, body io.Reader, header ...string) ([]byte, http.Header, error) {
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, resp.Header, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runPing(args []string) {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	server := serverFlag(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	start := time.Now()
	_, hdr, err := call(http.MethodGet, *server, "/api/v1/ping", nil)
	if err != nil {
		fail(err)
	}
	fmt.Printf("pong from %s in %s (request %s)\n", *server, time.Since(start).Truncate(time.Microsecond), hdr.Get("X-Request-Id"))
}

// runKV implements "filterlog-ctl kv".
func runKV(args []string) {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, "Usage: filterlog-ctl kv get|put|delete|list [flags] [key] [value]\n")
		os.Exit(1)
	}
	op := args[0]

	fs := flag.NewFlagSet("kv "+op, flag.ExitOnError)
	server := serverFlag(fs)
	prefix := fs.String("prefix", "", "Key prefix (list only)")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}
	rest := fs.Args()

	keyPath := func() string {
		if len(rest) < 1 || rest[0] == "" {
			fmt.Fprintf(os.Stderr, "Error: kv %s requires a key\n", op)
			os.Exit(1)
		}
		return "/api/v1/kv/" + url.PathEscape(rest[0])
	}

	switch op {
	case "get":
		data, _, err := call(http.MethodGet, *server, keyPath(), nil)
		if err != nil {
			fail(err)
		}
		os.Stdout.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
	case "put":
		p := keyPath()
		var body io.Reader = os.Stdin
		if len(rest) > 1 {
			body = strings.NewReader(rest[1])
		}
		if _, _, err := call(http.MethodPut, *server, p, body); err != nil {
			fail(err)
		}
		fmt.Printf("stored %s\n", rest[0])
	case "delete":
		if _, _, err := call(http.MethodDelete, *server, keyPath(), nil); err != nil {
			fail(err)
		}
		fmt.Printf("deleted %s\n", rest[0])
	case "list":
		data, _, err := call(http.MethodGet, *server, "/api/v1/kv?prefix="+url.QueryEscape(*prefix), nil)
		if err != nil {
			fail(err)
		}
		var resp struct {
			Keys []string `json:"keys"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			fail(err)
		}
		for _, k := range resp.Keys {
			fmt.Println(k)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown kv operation: %s\n", op)
		os.Exit(1)
	}
}

func runBackends(args []string) {
	fs := flag.NewFlagSet("backends", flag.ExitOnError)
	server := serverFlag(fs)
	summary := fs.Bool("summary", false, "Walk each backend to count files and bytes")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := "/api/v1/backends"
	if *summary {
		path += "?summary=true"
	}
	data, _, err := call(http.MethodGet, *server, path, nil)
	if err != nil {
		fail(err)
	}
	var stats []control.BackendStats
	if err := json.Unmarshal(data, &stats); err != nil {
		fail(err)
	}

	if *summary {
		fmt.Printf("%-20s %-12s %10s %12s\n", "BACKEND", "TYPE", "FILES", "SIZE")
		for _, st := range stats {
			fmt.Printf("%-20s %-12s %10d %12s\n", st.Name, st.Type, st.FileCount, humanBytes(st.TotalBytes))
		}
		return
	}
	fmt.Printf("%-20s %-12s\n", "BACKEND", "TYPE")
	for _, st := range stats {
		fmt.Printf("%-20s %-12s\n", st.Name, st.Type)
	}
}

func runCat(args []string) {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	server := serverFlag(fs)
	rng := fs.String("range", "", "Byte range, e.g. bytes=0-99")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, "Usage: filterlog-ctl cat [flags] <backend>/<path>\n")
		os.Exit(1)
	}
	backendName, path, ok := parseBackendPath(fs.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid object %q, want <backend>/<path>\n", fs.Arg(0))
		os.Exit(1)
	}

	var header []string
	if *rng != "" {
		header = []string{"Range", *rng}
	}
	data, _, err := call(http.MethodGet, *server, "/files/"+url.PathEscape(backendName)+"/"+path, nil, header...)
	if err != nil {
		fail(err)
	}
	os.Stdout.Write(data)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (defaults apply when empty)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: filterlog-ctl status [flags]\n\nShow the effective configuration.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	fmt.Println("filterlog Status")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("Listen:       %s\n", cfg.Server.Addr)
	fmt.Printf("Max Body:     %s\n", humanBytes(cfg.Server.MaxBody))
	fmt.Printf("Store:        %s\n", displayOrDefault(cfg.Store.Path, "(in memory)"))
	fmt.Printf("Backends:     %d configured\n", len(cfg.Backends))
	for _, b := range cfg.Backends {
		fmt.Printf("  - %-15s (%s) at %s\n", b.Name, b.Type, displayOrDefault(b.Root, "/"))
	}
	fmt.Println()
	fmt.Println("Observability")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("Access Log:   %v (%s)\n", cfg.AccessLog.AccessLogEnabled(), cfg.AccessLog.Name)
	fmt.Printf("Metrics:      %v (%s)\n", cfg.Metrics.MetricsEnabled(), cfg.Metrics.Addr)
	fmt.Printf("Tracing:      %v\n", cfg.Tracing.Enabled)
	if cfg.Tracing.Enabled {
		fmt.Printf("Endpoint:     %s\n", displayOrDefault(cfg.Tracing.Endpoint, "(not exported)"))
	}
	fmt.Println("────────────────────────────────────")
}

func parseBackendPath(s string) (backendName, path string, ok bool) {
	backendName, path, ok = strings.Cut(strings.TrimPrefix(s, "/"), "/")
	if !ok || backendName == "" {
		return "", "", false
	}
	return backendName, path, true
}

func humanBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffix := []string{"KB", "MB", "GB", "TB", "PB"}
	if exp >= len(suffix) {
		exp = len(suffix) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(b)/float64(div), suffix[exp])
}

func displayOrDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return def
	}
	return s
}
