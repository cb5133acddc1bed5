// README: Benchmark cases; health, chat flow, per-user serialization, cache and load checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusPending = "PENDING"
	StatusSkip    = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

type chatReply struct {
	Text    string `json:"text"`
	Options []struct {
		Label string `json:"label"`
		Value string `json:"value"`
	} `json:"options"`
	State     string          `json:"state"`
	ErrorKind string          `json:"error_kind"`
	Route     json.RawMessage `json:"route"`
}

var statusColor = map[string]*color.Color{
	StatusPass:    color.New(color.FgGreen),
	StatusFail:    color.New(color.FgRed, color.Bold),
	StatusPending: color.New(color.FgYellow),
	StatusSkip:    color.New(color.FgHiBlack),
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		statusColor[res.Status].Printf("%-7s", res.Status)
		fmt.Printf(" %s", tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "geocode cache database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "dsn not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "route cache reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the migration file exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass}
			},
		},

		httpCaseMethod("API: health", http.MethodGet, base+"/health", nil, []int{200}, nil),
		httpCaseMethod("API: metrics exposed", http.MethodGet, base+"/metrics", nil, []int{200}, []int{404}),

		// Input validation
		httpCase("Chat: invalid uid -> 400", base+"/api/chat/bad%20uid/messages", map[string]any{"text": "/route"}, []int{400}, nil),
		httpCase("Chat: unknown event type -> 400", base+"/api/chat/"+benchUser()+"/events", map[string]any{"type": "teleport"}, []int{400}, nil),
		httpCaseMethod("Chat: session of unknown user -> 404", http.MethodGet, base+"/api/chat/"+benchUser()+"/session", nil, []int{404}, nil),

		{
			Name:  "Chat: text without session",
			Focus: "session error kind, state idle",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				reply, err := r.say(ctx, benchUser(), "hello")
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if reply.ErrorKind != "session" || reply.State != "idle" {
					return Result{Status: StatusFail, Note: fmt.Sprintf("state=%s error_kind=%s", reply.State, reply.ErrorKind)}
				}
				return Result{Status: StatusPass, Latency: time.Since(start)}
			},
		},
		{
			Name:  "Chat: start and cancel",
			Focus: "start -> awaiting_origin, cancel -> cancelled, then no session",
			Run: func(ctx context.Context, r *Runner) Result {
				uid := benchUser()
				start := time.Now()
				if reply, err := r.say(ctx, uid, "/route"); err != nil || reply.State != "awaiting_origin" {
					return Result{Status: StatusFail, Note: fmt.Sprintf("start: state=%s err=%v", reply.State, err)}
				}
				if reply, err := r.event(ctx, uid, map[string]any{"type": "cancel"}); err != nil || reply.State != "cancelled" {
					return Result{Status: StatusFail, Note: fmt.Sprintf("cancel: state=%s err=%v", reply.State, err)}
				}
				code, err := r.status(ctx, http.MethodGet, base+"/api/chat/"+uid+"/session")
				if err != nil || code != http.StatusNotFound {
					return Result{Status: StatusFail, Note: fmt.Sprintf("session after cancel: status=%d err=%v", code, err)}
				}
				return Result{Status: StatusPass, Latency: time.Since(start)}
			},
		},
		{
			Name:  "Flow: origin and destination to route",
			Focus: "scripted conversation ends idle with a route",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.scriptedFlow(ctx, benchUser())
			},
		},
		{
			Name:  "Flow: repeat (cache warm)",
			Focus: "same queries again, usually faster through the caches",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.scriptedFlow(ctx, benchUser())
			},
		},
		{
			Name:  "Race: concurrent start for one user",
			Focus: "per-user turns are serialized; exactly one session exists",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentStart(ctx, r, benchUser())
			},
		},
		{
			Name:  "Cache: geocode rows stored",
			Focus: "geocode_cache has entries after the flows",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				var n int64
				if err := r.db.QueryRow(ctx, "SELECT count(*) FROM geocode_cache").Scan(&n); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if n == 0 {
					return Result{Status: StatusPending, Note: "no rows (cache disabled on the server?)"}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("rows=%d", n)}
			},
		},
		{
			Name:  "Cache: route keys stored",
			Focus: "redis holds routebot:route:* keys after the flows",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				keys, _, err := r.redis.Scan(ctx, 0, "routebot:route:*", 100).Result()
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if len(keys) == 0 {
					return Result{Status: StatusPending, Note: "no keys (cache disabled on the server?)"}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("keys>=%d", len(keys))}
			},
		},
		{
			Name:  "Perf: start load across users",
			Focus: "throughput of the session path without providers",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base, map[string]any{"text": "/route"})
			},
		},
		manualCase("Matrix: message round trip", "run routebot-matrix and talk to the bot in an allowed room"),
		manualCase("Sweeper: idle expiry notice", "set session.idle_timeout low and wait one sweep interval"),
	}
}

func benchUser() string {
	return "bench-" + uuid.NewString()[:8]
}

// scriptedFlow walks start -> origin -> destination, picking option 1 whenever asked.
func (r *Runner) scriptedFlow(ctx context.Context, uid string) Result {
	start := time.Now()
	if _, err := r.say(ctx, uid, "/route"); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	steps := []string{r.cfg.Origin, r.cfg.Destination}
	var reply chatReply
	for i := 0; i < 6; i++ {
		var err error
		switch {
		case strings.HasSuffix(reply.State, "_choice"):
			reply, err = r.event(ctx, uid, map[string]any{"type": "select", "choice": 1})
		case len(steps) > 0:
			reply, err = r.say(ctx, uid, steps[0])
			steps = steps[1:]
		default:
			return Result{Status: StatusFail, Note: "flow did not finish: state=" + reply.State}
		}
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if reply.ErrorKind == "provider" {
			return Result{Status: StatusPending, Latency: time.Since(start), Note: "provider unavailable: " + firstLine(reply.Text)}
		}
		if reply.State == "idle" {
			if len(reply.Route) == 0 || string(reply.Route) == "null" {
				return Result{Status: StatusFail, Note: "idle without route: " + firstLine(reply.Text)}
			}
			return Result{Status: StatusPass, Latency: time.Since(start), Note: firstLine(reply.Text)}
		}
		if reply.State == "awaiting_origin" || reply.State == "awaiting_destination" {
			if len(steps) == 0 {
				return Result{Status: StatusFail, Note: "place not found: " + firstLine(reply.Text)}
			}
		}
	}
	return Result{Status: StatusFail, Note: "too many turns"}
}

func (r *Runner) say(ctx context.Context, uid, text string) (chatReply, error) {
	return r.post(ctx, r.cfg.BaseURL+"/api/chat/"+uid+"/messages", map[string]any{"text": text})
}

func (r *Runner) event(ctx context.Context, uid string, ev map[string]any) (chatReply, error) {
	return r.post(ctx, r.cfg.BaseURL+"/api/chat/"+uid+"/events", ev)
}

func (r *Runner) post(ctx context.Context, url string, body any) (chatReply, error) {
	var reply chatReply
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return reply, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return reply, fmt.Errorf("status=%d", resp.StatusCode)
	}
	return reply, json.NewDecoder(resp.Body).Decode(&reply)
}

func (r *Runner) status(ctx context.Context, method, url string) (int, error) {
	req, _ := http.NewRequestWithContext(ctx, method, url, nil)
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func httpCase(name, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return httpCaseMethod(name, http.MethodPost, url, body, okStatuses, pendingStatuses)
}

func httpCaseMethod(name, method, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP",
		Run: func(ctx context.Context, r *Runner) Result {
			var reader io.Reader
			if body != nil {
				b, _ := json.Marshal(body)
				reader = bytes.NewReader(b)
			}
			req, _ := http.NewRequestWithContext(ctx, method, url, reader)
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			start := time.Now()
			resp, err := r.httpc.Do(req)
			latency := time.Since(start)
			if err != nil {
				return Result{Status: StatusFail, Latency: latency, Note: err.Error()}
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if contains(okStatuses, resp.StatusCode) {
				return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			if contains(pendingStatuses, resp.StatusCode) {
				return Result{Status: StatusPending, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: StatusSkip, Note: note}
		},
	}
}

// concurrentStart fires the same start for one user in parallel. Every reply
// must land in awaiting_origin and exactly one live session must remain.
func concurrentStart(ctx context.Context, r *Runner, uid string) Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, bad int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := r.say(ctx, uid, "/route")
			mu.Lock()
			defer mu.Unlock()
			if err == nil && reply.State == "awaiting_origin" {
				ok++
			} else {
				bad++
			}
		}()
	}
	wg.Wait()

	code, err := r.status(ctx, http.MethodGet, r.cfg.BaseURL+"/api/chat/"+uid+"/session")
	if err != nil || code != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("session status=%d err=%v", code, err)}
	}
	if bad > 0 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("ok=%d bad=%d", ok, bad)}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("ok=%d", ok)}
}

func perfLoad(ctx context.Context, r *Runner, base string, payload any) Result {
	b, _ := json.Marshal(payload)
	end := time.Now().Add(r.cfg.Duration)
	var count int64
	var errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := base + "/api/chat/" + benchUser() + "/messages"
			for time.Now().Before(end) && ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
