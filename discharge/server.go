package discharge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/macaroonkit/macaroon"
)

// KeyLookup resolves a third-party caveat's caveat_id to the verification
// key the discharging party should mint under. The embedding application
// owns this policy decision and the storage behind it; the Server just
// calls whatever is plugged in.
type KeyLookup func(ctx context.Context, caveatID []byte) (macaroon.SigningKey, error)

// Server mints discharge tokens over HTTP, either immediately or via a
// poll-based flow when the discharge decision requires asynchronous work
// (e.g. a human approval step).
type Server struct {
	Location string
	Keys     KeyLookup
	Store    Store
	Log      logrus.FieldLogger
}

type dischargeRequest struct {
	CaveatID string   `json:"caveat_id"`
	Caveats  []string `json:"caveats,omitempty"`
}

type dischargeResponse struct {
	Discharge string `json:"discharge,omitempty"`
	PollURL   string `json:"poll_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleDischarge mints a discharge token immediately and writes it as a
// base64 bundle in the response body. Use this for discharge policies
// that can be decided synchronously within the request.
func (s *Server) HandleDischarge(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	bundle, err := s.mint(r.Context(), req)
	if err != nil {
		s.respondError(w, r, http.StatusForbidden, err.Error())
		return
	}

	s.respond(w, r, "discharge", http.StatusCreated, &dischargeResponse{Discharge: bundle})
}

// HandlePoll creates a pending poll entry and writes back a poll URL; the
// caller is expected to follow up with HandlePollStatus until the
// discharge (or a refusal) is ready. The actual decision is expected to
// be completed out of band via CompletePoll/AbortPoll.
func (s *Server) HandlePoll(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		s.respondError(w, r, http.StatusInternalServerError, "no store configured")
		return
	}

	pollSecret, err := s.Store.Insert(r.Context(), &Result{})
	if err != nil {
		s.getLog(r).WithError(err).Warn("store insert")
		s.respondError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	s.respond(w, r, "poll", http.StatusCreated, &dischargeResponse{
		PollURL: s.pollURL(pollSecret),
	})
}

// HandlePollStatus serves GET requests against a poll URL previously
// returned by HandlePoll, returning 202 while the discharge decision is
// still pending.
func (s *Server) HandlePollStatus(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		s.respondError(w, r, http.StatusInternalServerError, "no store configured")
		return
	}

	pollSecret := lastPathSegment(r.URL.EscapedPath())

	result, err := s.Store.GetByPollSecret(r.Context(), pollSecret)
	if err != nil {
		s.respondError(w, r, http.StatusNotFound, "not found")
		return
	}

	if !result.Ready() {
		s.respondError(w, r, http.StatusAccepted, "not ready")
		return
	}

	if err := s.Store.DeleteByPollSecret(r.Context(), pollSecret); err != nil {
		s.getLog(r).WithError(err).Warn("store delete")
	}

	if result.Err != "" {
		s.respond(w, r, "poll-status", http.StatusOK, &dischargeResponse{Error: result.Err})
		return
	}

	s.respond(w, r, "poll-status", http.StatusOK, &dischargeResponse{
		Discharge: string(result.Discharge),
	})
}

// CompletePoll mints a discharge for a pending poll and records it, to be
// picked up by a subsequent HandlePollStatus call.
func (s *Server) CompletePoll(ctx context.Context, pollSecret string, req dischargeRequestArgs) error {
	bundle, err := s.mint(ctx, dischargeRequest{CaveatID: req.CaveatIDBase64(), Caveats: req.Caveats})
	if err != nil {
		return s.Store.UpdateByPollSecret(ctx, pollSecret, &Result{Err: err.Error()})
	}
	return s.Store.UpdateByPollSecret(ctx, pollSecret, &Result{Discharge: []byte(bundle)})
}

// AbortPoll records a refusal for a pending poll.
func (s *Server) AbortPoll(ctx context.Context, pollSecret, message string) error {
	return s.Store.UpdateByPollSecret(ctx, pollSecret, &Result{Err: message})
}

// dischargeRequestArgs is the caller-facing argument to CompletePoll; kept
// distinct from the wire-level dischargeRequest so callers don't need to
// hand-encode base64 caveat IDs themselves.
type dischargeRequestArgs struct {
	CaveatID []byte
	Caveats  []string
}

func (a dischargeRequestArgs) CaveatIDBase64() string {
	return base64.StdEncoding.EncodeToString(a.CaveatID)
}

func (s *Server) mint(ctx context.Context, req dischargeRequest) (string, error) {
	caveatID, err := base64.StdEncoding.DecodeString(req.CaveatID)
	if err != nil {
		return "", macaroon.InvalidFormat("bad caveat_id encoding")
	}

	vk, err := s.Keys(ctx, caveatID)
	if err != nil {
		return "", err
	}

	token := macaroon.CreateDischarge(vk, caveatID, s.Location)
	for _, predicate := range req.Caveats {
		token = token.AddFirstParty([]byte(predicate))
	}

	return macaroon.EncodeBundle(token)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (dischargeRequest, bool) {
	var req dischargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.getLog(r).WithError(err).Warn("decode discharge request")
		s.respondError(w, r, http.StatusBadRequest, "bad request")
		return dischargeRequest{}, false
	}
	return req, true
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.respond(w, r, "error", status, &dischargeResponse{Error: msg})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, respType string, status int, resp *dischargeResponse) {
	log := s.getLog(r).WithFields(logrus.Fields{"status": status, "resp": respType})

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("writing response")
		return
	}
	log.Debug("responded")
}

func (s *Server) getLog(r *http.Request) logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func (s *Server) pollURL(pollSecret string) string {
	base := strings.TrimSuffix(s.Location, "/")
	return base + "/poll/" + url.PathEscape(pollSecret)
}

func lastPathSegment(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
