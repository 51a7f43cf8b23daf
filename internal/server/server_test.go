package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fakeyudi/commit-guardian/internal/review"
)

const sampleDiff = `diff --git a/a.txt b/a.txt
index 1111111..2222222 100644
--- a/a.txt
+++ b/a.txt
@@ -1,2 +1,3 @@
 one
+two
 three
`

type fakeCommitter struct {
	mu       sync.Mutex
	messages []string
	err      error
	delay    time.Duration

	// When set, Commit signals started and then blocks until release is closed.
	started chan struct{}
	release chan struct{}
}

func (f *fakeCommitter) Commit(ctx context.Context, message string) error {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeCommitter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// syncBuffer is a bytes.Buffer safe to read while handlers write to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestServer(t *testing.T, c *fakeCommitter) (*Server, *syncBuffer, *syncBuffer) {
	t.Helper()
	out, errs := &syncBuffer{}, &syncBuffer{}
	s, err := New(Config{
		Snapshot:       review.NewSnapshot(sampleDiff, ""),
		DefaultMessage: "wip",
		Committer:      c,
		Out:            out,
		Errs:           errs,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, out, errs
}

func postJSON(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func outcome(t *testing.T, s *Server) Outcome {
	t.Helper()
	select {
	case o := <-s.Done():
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func TestNewRequiresSnapshotAndCommitter(t *testing.T) {
	if _, err := New(Config{Committer: &fakeCommitter{}}); err == nil {
		t.Error("expected error without snapshot")
	}
	if _, err := New(Config{Snapshot: review.NewSnapshot("", "")}); err == nil {
		t.Error("expected error without committer")
	}
}

func TestGetDiff(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/diff")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}

	var body struct {
		HasChanges     bool   `json:"hasChanges"`
		DefaultMessage string `json:"defaultMessage"`
		Stale          bool   `json:"stale"`
		StagedLines    []struct {
			Type string `json:"type"`
		} `json:"stagedLines"`
		Stats review.Stats `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.HasChanges || body.DefaultMessage != "wip" || body.Stale {
		t.Errorf("unexpected body: %+v", body)
	}
	if len(body.StagedLines) != 5 {
		t.Errorf("staged lines: got %d, want 5", len(body.StagedLines))
	}
	if body.Stats != (review.Stats{TotalFiles: 1, TotalAdditions: 1}) {
		t.Errorf("stats: got %+v", body.Stats)
	}
}

func TestMarkStaleReflectedInDiff(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	s.MarkStale()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diff", nil))
	if !strings.Contains(rec.Body.String(), `"stale":true`) {
		t.Errorf("stale flag missing: %s", rec.Body.String())
	}
}

func TestIndexServesPage(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	for _, path := range []string{"/", "/anything"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Commit Guardian") {
			t.Errorf("%s: page body missing title", path)
		}
	}
}

func TestUnknownAPIPath(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestWrongMethod(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/diff"},
		{http.MethodGet, "/api/approve"},
		{http.MethodGet, "/api/reject"},
		{http.MethodDelete, "/"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
	if s.State() != AwaitingDecision {
		t.Errorf("state changed to %v", s.State())
	}
}

func TestApproveBlankMessage(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		c := &fakeCommitter{}
		s, _, _ := newTestServer(t, c)
		ts := httptest.NewServer(s.Handler())

		body, _ := json.Marshal(ApproveRequest{Message: msg})
		resp, decoded := postJSON(t, ts.URL+"/api/approve", string(body))
		ts.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: status %d, want 400", msg, resp.StatusCode)
		}
		if decoded["error"] != "Commit message is required" {
			t.Errorf("%q: error %v", msg, decoded["error"])
		}
		if len(c.calls()) != 0 {
			t.Errorf("%q: commit ran", msg)
		}
		if s.State() != AwaitingDecision {
			t.Errorf("%q: state %v", msg, s.State())
		}
	}
}

func TestApproveMalformedJSON(t *testing.T) {
	c := &fakeCommitter{}
	s, _, _ := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, _ := postJSON(t, ts.URL+"/api/approve", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if len(c.calls()) != 0 {
		t.Error("commit ran on malformed body")
	}
}

func TestApproveCommits(t *testing.T) {
	c := &fakeCommitter{}
	s, out, _ := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"message":"  add two  ","fileComments":[{"file":"a.txt","line":2,"text":"nice"}]}`
	resp, decoded := postJSON(t, ts.URL+"/api/approve", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if decoded["success"] != true || decoded["autoClose"] != true {
		t.Errorf("unexpected body: %v", decoded)
	}
	if got := c.calls(); len(got) != 1 || got[0] != "add two" {
		t.Errorf("commit calls: %v", got)
	}

	o := outcome(t, s)
	if o.ExitCode != 0 || o.Err != nil || o.Decision.Verdict != review.Approved {
		t.Errorf("outcome: %+v", o)
	}
	if len(o.Decision.Comments) != 1 || o.Decision.Comments[0].ID == "" {
		t.Errorf("comments not carried with ids: %+v", o.Decision.Comments)
	}
	if s.State() != Terminated {
		t.Errorf("state: %v", s.State())
	}

	text := out.String()
	for _, want := range []string{"Changes approved", "Commit message: add two", "a.txt:2 - nice", "Successfully committed changes"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestApproveCommitFailure(t *testing.T) {
	c := &fakeCommitter{err: errors.New("nothing to commit")}
	s, _, errs := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, decoded := postJSON(t, ts.URL+"/api/approve", `{"message":"x"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", resp.StatusCode)
	}
	if decoded["success"] != false || decoded["error"] != "nothing to commit" {
		t.Errorf("body: %v", decoded)
	}
	o := outcome(t, s)
	if o.ExitCode != 1 || o.Err == nil {
		t.Errorf("outcome: %+v", o)
	}
	if !strings.Contains(errs.String(), "Commit failed: nothing to commit") {
		t.Errorf("stderr: %q", errs.String())
	}
}

func TestConcurrentApproveCommitsOnce(t *testing.T) {
	c := &fakeCommitter{delay: 50 * time.Millisecond}
	s, _, _ := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/api/approve", "application/json",
				strings.NewReader(`{"message":"m`+strconv.Itoa(i)+`"}`))
			if err != nil {
				t.Errorf("POST: %v", err)
				return
			}
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	if n := len(c.calls()); n != 1 {
		t.Fatalf("commit ran %d times, want 1", n)
	}
	ok, conflict := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	if ok != 1 || conflict != 1 {
		t.Errorf("status codes: %v", codes)
	}
}

func TestDecisionAfterTermination(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	postJSON(t, ts.URL+"/api/reject", `{"rejectReason":"no"}`)
	resp, decoded := postJSON(t, ts.URL+"/api/approve", `{"message":"late"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status: got %d, want 409", resp.StatusCode)
	}
	if decoded["error"] != ErrAlreadyDecided.Error() {
		t.Errorf("error: %v", decoded["error"])
	}
}

func TestRejectTranscript(t *testing.T) {
	c := &fakeCommitter{}
	s, out, _ := newTestServer(t, c)
	var copied string
	s.cfg.Clipboard = func(text string) error {
		copied = text
		return nil
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"rejectReason":"needs tests","fileComments":[{"id":"c1","file":"a.txt","line":2,"text":"add a test","timestamp":1}]}`
	resp, decoded := postJSON(t, ts.URL+"/api/reject", body)
	if resp.StatusCode != http.StatusOK || decoded["success"] != true {
		t.Fatalf("reject: %d %v", resp.StatusCode, decoded)
	}
	if len(c.calls()) != 0 {
		t.Error("reject must not commit")
	}

	o := outcome(t, s)
	if o.ExitCode != 0 || o.Decision.Verdict != review.Rejected || o.Decision.Reason != "needs tests" {
		t.Errorf("outcome: %+v", o)
	}

	text := out.String()
	for _, want := range []string{"Changes rejected", "needs tests", "a.txt:2 - add a test"} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q:\n%s", want, text)
		}
	}
	if copied != text {
		t.Errorf("clipboard got %q, want transcript %q", copied, text)
	}
}

func TestRejectClipboardFailureWarns(t *testing.T) {
	s, _, errs := newTestServer(t, &fakeCommitter{})
	s.cfg.Clipboard = func(string) error { return errors.New("no display") }

	req := httptest.NewRequest(http.MethodPost, "/api/reject", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !strings.Contains(errs.String(), "no display") {
		t.Errorf("warning missing: %q", errs.String())
	}
}

func TestApproveRejectsCrossOrigin(t *testing.T) {
	c := &fakeCommitter{}
	s, _, _ := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	_, port, _ := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))

	cases := []struct {
		name        string
		path        string
		contentType string
		origin      string
		want        int
	}{
		{"text/plain from another site", "/api/approve", "text/plain", "https://attacker.example", http.StatusUnsupportedMediaType},
		{"text/plain without origin", "/api/approve", "text/plain", "", http.StatusUnsupportedMediaType},
		{"form post", "/api/approve", "application/x-www-form-urlencoded", "", http.StatusUnsupportedMediaType},
		{"missing content type", "/api/approve", "", "", http.StatusUnsupportedMediaType},
		{"json from another site", "/api/approve", "application/json", "https://attacker.example", http.StatusForbidden},
		{"json from rebound hostname", "/api/approve", "application/json", "http://attacker.example:" + port, http.StatusForbidden},
		{"json from another local port", "/api/approve", "application/json", "http://localhost:1", http.StatusForbidden},
		{"reject from another site", "/api/reject", "application/json", "https://attacker.example", http.StatusForbidden},
		{"reject as text/plain", "/api/reject", "text/plain", "", http.StatusUnsupportedMediaType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, ts.URL+tc.path, strings.NewReader(`{"message":"evil","rejectReason":"evil"}`))
			if err != nil {
				t.Fatal(err)
			}
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	if got := c.calls(); len(got) != 0 {
		t.Errorf("commit ran for a refused request: %v", got)
	}
	if s.State() != AwaitingDecision {
		t.Errorf("state: got %v, want %v", s.State(), AwaitingDecision)
	}
}

func TestApproveAcceptsSameOrigin(t *testing.T) {
	c := &fakeCommitter{}
	s, _, _ := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	_, port, _ := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/approve", strings.NewReader(`{"message":"ok"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Origin", "http://localhost:"+port)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if got := c.calls(); len(got) != 1 || got[0] != "ok" {
		t.Errorf("commit calls: %v", got)
	}
}

func TestCancelBeforeDecision(t *testing.T) {
	c := &fakeCommitter{}
	s, _, _ := newTestServer(t, c)
	if !s.Cancel() {
		t.Fatal("Cancel of an undecided session should report true")
	}
	if s.State() != Terminated {
		t.Errorf("state: %v", s.State())
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	resp, _ := postJSON(t, ts.URL+"/api/approve", `{"message":"late"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status: got %d, want 409", resp.StatusCode)
	}
	if len(c.calls()) != 0 {
		t.Error("commit ran after cancel")
	}
	if s.Cancel() {
		t.Error("second Cancel should report false")
	}
}

func TestCancelWaitsForCommitInProgress(t *testing.T) {
	c := &fakeCommitter{started: make(chan struct{}), release: make(chan struct{})}
	s, _, _ := newTestServer(t, c)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	go func() {
		resp, err := http.Post(ts.URL+"/api/approve", "application/json", strings.NewReader(`{"message":"slow hook"}`))
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-c.started

	cancelled := make(chan bool, 1)
	go func() { cancelled <- s.Cancel() }()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while the commit was still running")
	case <-time.After(100 * time.Millisecond):
	}
	close(c.release)

	select {
	case got := <-cancelled:
		if got {
			t.Error("Cancel should report false once a decision was handled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not return after the commit finished")
	}
	o := outcome(t, s)
	if o.ExitCode != 0 || o.Decision.Message != "slow hook" {
		t.Errorf("outcome: %+v", o)
	}
}

func TestListenSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupying port: %v", err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	s, _, _ := newTestServer(t, &fakeCommitter{})
	if err := s.Listen("127.0.0.1", port); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer s.ln.Close()

	got := s.ln.Addr().(*net.TCPAddr).Port
	if got <= port || got > port+maxPortAttempts {
		t.Errorf("bound port %d, want in (%d, %d]", got, port, port+maxPortAttempts)
	}
	if want := "http://127.0.0.1:" + strconv.Itoa(got); s.URL() != want {
		t.Errorf("URL: got %q, want %q", s.URL(), want)
	}
}

func TestServeBeforeListen(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	if err := s.Serve(); err == nil {
		t.Error("expected error")
	}
}

func TestServeDecisionThenShutdown(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeCommitter{})
	if err := s.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	resp, decoded := postJSON(t, s.URL()+"/api/approve", `{"message":"ship it"}`)
	if resp.StatusCode != http.StatusOK || decoded["success"] != true {
		t.Fatalf("approve: %d %v", resp.StatusCode, decoded)
	}
	outcome(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{Idle: "idle", AwaitingDecision: "awaiting-decision", Terminated: "terminated"} {
		if st.String() != want {
			t.Errorf("%d: got %q", int(st), st.String())
		}
	}
}
