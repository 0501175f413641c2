package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/famousjsons/kit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestCORS(t *testing.T) {
	// WHAT: only allow-listed origins receive CORS headers; preflights end here.
	// WHY: the state endpoints are public but must only be scriptable from the site.
	h := CORS(CORSConfig{})(okHandler())

	cases := []struct {
		name       string
		method     string
		origin     string
		preflight  string
		wantStatus int
		wantAllow  string
		wantBody   bool
	}{
		{"allowed simple", http.MethodGet, "https://famousjsons.com", "", 200, "https://famousjsons.com", true},
		{"localhost", http.MethodPost, "http://localhost:3000", "", 200, "http://localhost:3000", true},
		{"other origin", http.MethodGet, "https://evil.example", "", 200, "", true},
		{"no origin", http.MethodGet, "", "", 200, "", true},
		{"allowed preflight", http.MethodOptions, "https://famousjsons.com", "POST", 204, "https://famousjsons.com", false},
		{"denied preflight", http.MethodOptions, "https://evil.example", "POST", 403, "", false},
		{"method not allowed", http.MethodOptions, "https://famousjsons.com", "DELETE", 403, "", false},
	}
	for _, c := range cases {
		req := httptest.NewRequest(c.method, "/getState", nil)
		if c.origin != "" {
			req.Header.Set("Origin", c.origin)
		}
		if c.preflight != "" {
			req.Header.Set("Access-Control-Request-Method", c.preflight)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != c.wantStatus {
			t.Errorf("%s: status %d, want %d", c.name, rec.Code, c.wantStatus)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != c.wantAllow {
			t.Errorf("%s: allow-origin %q, want %q", c.name, got, c.wantAllow)
		}
		if got := rec.Body.String() == "OK"; got != c.wantBody {
			t.Errorf("%s: handler reached = %v, want %v", c.name, got, c.wantBody)
		}
		if c.preflight != "" && c.wantStatus == 204 {
			if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
				t.Errorf("%s: methods %q", c.name, rec.Header().Get("Access-Control-Allow-Methods"))
			}
			if rec.Header().Get("Access-Control-Max-Age") != "600" {
				t.Errorf("%s: max-age %q", c.name, rec.Header().Get("Access-Control-Max-Age"))
			}
		}
	}
}

func TestCORS_Wildcard(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"*"}})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("allow-origin: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORS_PreflightHeaders(t *testing.T) {
	h := CORS(CORSConfig{})(okHandler())
	for _, c := range []struct {
		headers string
		want    int
	}{
		{"content-type", 204},
		{"X-Secret-Token", 403},
	} {
		req := httptest.NewRequest(http.MethodOptions, "/updateState", nil)
		req.Header.Set("Origin", "https://famousjsons.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", c.headers)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s: status %d, want %d", c.headers, rec.Code, c.want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultHeaders())(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s: got %q, want %q", k, got, v)
		}
	}

	rec = httptest.NewRecorder()
	SecurityHeaders(HeaderConfig{XFrameOptions: "DENY"})(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty CSP should not be written")
	}
}

func TestTraceID(t *testing.T) {
	var ctxID string
	var hasLogger bool
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = kit.GetTraceID(r.Context())
		_, hasLogger = r.Context().Value(LoggerKey).(*slog.Logger)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	header := rec.Header().Get("X-Trace-ID")
	if len(header) != 12 {
		t.Fatalf("X-Trace-ID %q", header)
	}
	if ctxID != header {
		t.Fatalf("context trace id %q != header %q", ctxID, header)
	}
	if !hasLogger {
		t.Fatal("no per-request logger")
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { method = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/", nil))
	if method != http.MethodGet {
		t.Fatalf("got %s", method)
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("12345678")))
	if readErr != nil {
		t.Fatalf("at limit: %v", readErr)
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("123456789")))
	if readErr == nil {
		t.Fatal("over limit: expected read error")
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: the N+1th request in a window is refused with 429 and Retry-After.
	// WHY: /updateState and /mosaic are expensive (RPC calls, rasterizing).
	rl := NewRateLimiter(map[string]RateLimit{
		"POST /updateState": {MaxRequests: 2, Window: time.Minute},
		"POST /broken":      {MaxRequests: 0, Window: time.Minute},
	}, false)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	do := func(method, path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("POST", "/updateState", "10.0.0.1"); rec.Code != 200 {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := do("POST", "/updateState", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After: %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("body: %s", rec.Body.String())
	}

	if rec := do("POST", "/updateState", "10.0.0.2"); rec.Code != 200 {
		t.Errorf("other ip: %d", rec.Code)
	}
	if rec := do("GET", "/getState", "10.0.0.1"); rec.Code != 200 {
		t.Errorf("unruled endpoint: %d", rec.Code)
	}
	for i := 0; i < 5; i++ {
		if rec := do("POST", "/broken", "10.0.0.1"); rec.Code != 200 {
			t.Errorf("ignored rule: %d", rec.Code)
		}
	}

	now = now.Add(61 * time.Second)
	if rec := do("POST", "/updateState", "10.0.0.1"); rec.Code != 200 {
		t.Errorf("after window: %d", rec.Code)
	}

	now = now.Add(2 * time.Minute)
	rl.gc()
	n := 0
	rl.buckets.Range(func(any, any) bool { n++; return true })
	if n != 0 {
		t.Errorf("gc left %d buckets", n)
	}
}

func TestExtractIP(t *testing.T) {
	// WHAT: X-Forwarded-For is ignored unless trusted, and then only its last hop counts.
	// WHY: a client-supplied header must not let one caller spread over many rate-limit buckets.
	cases := []struct {
		name    string
		xff     string
		trusted bool
		want    string
	}{
		{"no header", "", false, "192.0.2.1"},
		{"untrusted header", "203.0.113.9", false, "192.0.2.1"},
		{"trusted single hop", "203.0.113.9", true, "203.0.113.9"},
		{"trusted chain", " 203.0.113.9 , 198.51.100.7 ", true, "198.51.100.7"},
		{"trusted empty hop", "203.0.113.9, ", true, "192.0.2.1"},
		{"trusted no header", "", true, "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := ExtractIP(req, tc.trusted); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimiter_SpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimit{"POST /updateState": {MaxRequests: 1, Window: time.Minute}}, false)
	h := rl.Middleware(okHandler())
	codes := make([]int, 0, 2)
	for _, spoof := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("POST", "/updateState", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", spoof)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 429]", codes)
	}
}
