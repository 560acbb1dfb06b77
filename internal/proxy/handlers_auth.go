package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, "Kite agent bridge is running!")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.broker.State()
	writeData(w, map[string]any{
		"service":       ServiceName,
		"healthy":       true,
		"authenticated": state.Authenticated,
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]any{
		"service":   ServiceName,
		"version":   ServiceVersion,
		"mode":      s.opts.Mode,
		"run_once":  s.opts.RunOnce,
		"endpoints": s.routes,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := s.broker.LoginURL(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info(r.Context(), "Login URL generated")
	writeData(w, map[string]string{"login_url": url})
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect := types.LoginRedirect{
		RequestToken: q.Get("request_token"),
		Action:       q.Get("action"),
		Type:         q.Get("type"),
		Status:       q.Get("status"),
	}

	creds, err := s.callback.Handle(r.Context(), redirect)
	switch {
	case errors.Is(err, types.ErrLoginNotSuccessful):
		writeEnvelope(w, http.StatusBadRequest, types.Failure("Login was not successful. Status: "+redirect.Status))
		return
	case errors.Is(err, types.ErrAuthExchangeFailed):
		m := redirect.Masked()
		msg := fmt.Sprintf("Authentication failed: %s (action=%s, type=%s, status=%s, request_token=%s)",
			rootMessage(err), m.Action, m.Type, m.Status, m.RequestToken)
		writeEnvelope(w, http.StatusBadRequest, types.Failure(msg))
		return
	case err != nil:
		writeError(w, r, err)
		return
	}

	if !s.opts.ExposeCredentials {
		creds = creds.Masked()
	}
	msg := "Authentication successful!"
	if s.opts.RunOnce {
		msg = "Authentication successful! Thank you! Server will close automatically."
	}
	writeEnvelope(w, http.StatusOK, types.Success(creds, msg))
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	if !s.broker.Authenticated() {
		writeEnvelope(w, http.StatusUnauthorized, types.Failure(msgNotAuthenticated))
		return
	}
	writeMessage(w, "Session is authenticated.")
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req types.SetAccessTokenReq
	err := readJSON(r, &req)
	if errors.Is(err, errEmptyBody) || (err == nil && req.AccessToken == "") {
		writeEnvelope(w, http.StatusBadRequest, types.Failure("Missing 'access_token' in request body."))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.broker.SetAccessToken(r.Context(), req.AccessToken); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Access token set successfully.")
}

func (s *Server) handleRenewToken(w http.ResponseWriter, r *http.Request) {
	var req types.RenewAccessTokenReq
	err := readJSON(r, &req)
	if errors.Is(err, errEmptyBody) || (err == nil && req.RefreshToken == "") {
		writeEnvelope(w, http.StatusBadRequest, types.Failure("Missing 'refresh_token' in request body."))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := s.broker.RenewAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.opts.ExposeCredentials {
		tokens = tokens.Masked()
	}
	writeData(w, tokens)
}
