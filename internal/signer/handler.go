package signer

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"oneauth/internal/config"
	"oneauth/internal/intent"
	"oneauth/internal/pipeline"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Server exposes the intent signer over HTTP.
type Server struct {
	signer  *Signer
	auth    *Verifier
	metrics *pipeline.Metrics
	router  *mux.Router
}

// NewServer builds the HTTP surface. A nil signer is allowed so the service
// can start without a key and report misconfiguration on use.
func NewServer(cfg config.SignerConfig, s *Signer, metrics *pipeline.Metrics) *Server {
	srv := &Server{
		signer: s,
		auth: &Verifier{
			Secret:  cfg.HMACSecret,
			MaxSkew: cfg.ClockSkew,
		},
		metrics: metrics,
	}

	r := mux.NewRouter()
	r.Handle("/api/sign-intent", srv.auth.Middleware(http.HandlerFunc(srv.handleSignIntent))).Methods(http.MethodPost)
	r.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	srv.router = r
	return srv
}

func (s *Server) Router() http.Handler { return s.router }

type signIntentRequest struct {
	Username       string                `json:"username,omitempty"`
	AccountAddress string                `json:"accountAddress,omitempty"`
	TargetChain    int64                 `json:"targetChain"`
	Calls          []intent.Call         `json:"calls"`
	TokenRequests  []intent.TokenRequest `json:"tokenRequests,omitempty"`
}

func (s *Server) handleSignIntent(w http.ResponseWriter, r *http.Request) {
	var payload signIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if err := validateSignIntentRequest(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.signer == nil {
		http.Error(w, "signer key not configured", http.StatusInternalServerError)
		return
	}

	signed, err := s.signer.SignIntent(intent.SignRequest{
		Username:       payload.Username,
		AccountAddress: payload.AccountAddress,
		TargetChain:    payload.TargetChain,
		Calls:          payload.Calls,
		TokenRequests:  payload.TokenRequests,
	})
	if err != nil {
		var ie *intent.Error
		if errors.As(err, &ie) && ie.Code != intent.CodeSigningFailed {
			http.Error(w, ie.Message, http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to sign intent", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(signed)
}

func validateSignIntentRequest(req signIntentRequest) error {
	if req.Username == "" && req.AccountAddress == "" {
		return errors.New("username or accountAddress is required")
	}
	if req.AccountAddress != "" && !addressPattern.MatchString(req.AccountAddress) {
		return errors.New("accountAddress must be a 40-hex-char address")
	}
	if req.TargetChain <= 0 {
		return errors.New("targetChain must be a positive number")
	}
	if len(req.Calls) == 0 {
		return errors.New("calls must not be empty")
	}
	for _, c := range req.Calls {
		if !addressPattern.MatchString(c.To) {
			return errors.New("every call requires a 40-hex-char to address")
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if s.signer == nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
