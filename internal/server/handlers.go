package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/fakeyudi/commit-guardian/internal/review"
)

//go:embed ui/index.html
var uiFS embed.FS

// maxBodyBytes caps decision payloads.
const maxBodyBytes = 1 << 20

// DiffResponse is the body of GET /api/diff.
type DiffResponse struct {
	*review.Snapshot
	DefaultMessage string `json:"defaultMessage,omitempty"`
	Stale          bool   `json:"stale"`
}

// ApproveRequest is the body of POST /api/approve.
type ApproveRequest struct {
	Message      string           `json:"message"`
	FileComments []review.Comment `json:"fileComments"`
}

// ApproveResponse is the reply to POST /api/approve.
type ApproveResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	AutoClose bool   `json:"autoClose,omitempty"`
}

// RejectRequest is the body of POST /api/reject.
type RejectRequest struct {
	RejectReason string           `json:"rejectReason"`
	FileComments []review.Comment `json:"fileComments"`
}

// RejectResponse is the reply to POST /api/reject.
type RejectResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Handler returns the HTTP routes. It is exposed for tests; Serve uses it too.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/diff", s.handleDiff)
	mux.HandleFunc("/api/approve", s.handleApprove)
	mux.HandleFunc("/api/reject", s.handleReject)
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// handleIndex serves the single-page UI for every non-API path.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	page, err := uiFS.ReadFile("ui/index.html")
	if err != nil {
		http.Error(w, "review page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{
		Snapshot:       s.cfg.Snapshot,
		DefaultMessage: s.cfg.DefaultMessage,
		Stale:          s.stale.Load(),
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ApproveResponse{Error: "method not allowed"})
		return
	}

	if status, err := s.checkDecisionRequest(r); err != nil {
		writeJSON(w, status, ApproveResponse{Error: err.Error()})
		return
	}
	var req ApproveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ApproveResponse{Error: err.Error()})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, ApproveResponse{Error: "Commit message is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingDecision {
		writeJSON(w, http.StatusConflict, ApproveResponse{Error: ErrAlreadyDecided.Error()})
		return
	}

	review.AssignIDs(req.FileComments)
	decision := review.Approve(message, req.FileComments)
	s.emit(decision)

	// The commit must not be abandoned halfway if the browser goes away.
	ctx := context.WithoutCancel(r.Context())
	if err := s.cfg.Committer.Commit(ctx, message); err != nil {
		fmt.Fprintf(s.cfg.Errs, "Commit failed: %v\n", err)
		writeJSON(w, http.StatusInternalServerError, ApproveResponse{Error: err.Error()})
		s.finish(Outcome{Decision: decision, ExitCode: 1, Err: err})
		return
	}

	fmt.Fprintln(s.cfg.Out, "Successfully committed changes")
	writeJSON(w, http.StatusOK, ApproveResponse{Success: true, AutoClose: true})
	s.finish(Outcome{Decision: decision, ExitCode: 0})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, RejectResponse{Error: "method not allowed"})
		return
	}

	if status, err := s.checkDecisionRequest(r); err != nil {
		writeJSON(w, status, RejectResponse{Error: err.Error()})
		return
	}
	var req RejectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, RejectResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingDecision {
		writeJSON(w, http.StatusConflict, RejectResponse{Error: ErrAlreadyDecided.Error()})
		return
	}

	review.AssignIDs(req.FileComments)
	decision := review.Reject(req.RejectReason, req.FileComments)
	transcript := s.emit(decision)

	if s.cfg.Clipboard != nil && transcript != "" {
		if err := s.cfg.Clipboard(transcript); err != nil {
			fmt.Fprintf(s.cfg.Errs, "warning: could not copy transcript to clipboard: %v\n", err)
		}
	}

	writeJSON(w, http.StatusOK, RejectResponse{Success: true})
	s.finish(Outcome{Decision: decision, ExitCode: 0})
}

// emit renders the decision to the transcript writer and returns the text.
// A rendering failure is reported but never blocks the decision.
func (s *Server) emit(d review.Decision) string {
	data, err := s.cfg.Renderer.Render(d)
	if err != nil {
		fmt.Fprintf(s.cfg.Errs, "warning: rendering transcript: %v\n", err)
		return ""
	}
	_, _ = s.cfg.Out.Write(data)
	return string(data)
}

// checkDecisionRequest refuses decision bodies that are not JSON or that were
// sent by a page other than the review page. Plain-text and form posts from
// other sites reach the server without a CORS preflight.
func (s *Server) checkDecisionRequest(r *http.Request) (int, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return http.StatusUnsupportedMediaType, errors.New("Content-Type must be application/json")
	}
	if origin := r.Header.Get("Origin"); origin != "" && !s.sameOrigin(r, origin) {
		return http.StatusForbidden, fmt.Errorf("cross-origin request from %s refused", origin)
	}
	return 0, nil
}

// sameOrigin reports whether origin is a loopback http origin on the port
// the review page is served from.
func (s *Server) sameOrigin(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}
	served := r.Host
	if s.url != "" {
		if su, err := url.Parse(s.url); err == nil {
			served = su.Host
		}
	}
	_, port, _ := net.SplitHostPort(served)
	if u.Port() != port {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
