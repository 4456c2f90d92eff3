package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/httputil"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/platform"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/roles"
)

// ValidateRequest is the body of a validation call from the CMS side.
type ValidateRequest struct {
	SessionToken string   `json:"sessionToken"`
	UserRoles    []string `json:"userRoles"`
	UserName     string   `json:"userName,omitempty"`
	UserEmail    string   `json:"userEmail,omitempty"`
}

// ValidateResponse is the typed validation outcome.
type ValidateResponse struct {
	Authorized    bool   `json:"authorized"`
	Role          string `json:"role,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// DefaultAuthorizedRoles lists the canonical roles granted staging access.
// Viewers authenticate fine but stay unauthorized.
func DefaultAuthorizedRoles() []string {
	return []string{
		string(roles.Administrator),
		string(roles.Developer),
		string(roles.Editor),
		string(roles.Contributor),
	}
}

// ValidateHandler answers session validation calls.
type ValidateHandler struct {
	secret     []byte
	authorized map[string]struct{}
	clock      platform.Clock
	logger     *logrus.Logger
}

// NewValidateHandler creates the handler. authorizedRoles defaults to
// DefaultAuthorizedRoles when empty.
func NewValidateHandler(secret []byte, authorizedRoles []string, clock platform.Clock, logger *logrus.Logger) *ValidateHandler {
	if len(authorizedRoles) == 0 {
		authorizedRoles = DefaultAuthorizedRoles()
	}
	allowed := make(map[string]struct{}, len(authorizedRoles))
	for _, role := range authorizedRoles {
		allowed[roles.Normalize(role)] = struct{}{}
	}
	if clock == nil {
		clock = platform.SystemClock()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ValidateHandler{
		secret:     secret,
		authorized: allowed,
		clock:      clock,
		logger:     logger,
	}
}

// ServeHTTP handles POST {validate endpoint}.
func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SessionToken, "sessionToken") {
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	now := h.clock.Now()
	resp := ValidateResponse{
		CorrelationID: correlationID,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}

	subject, err := VerifySessionToken(h.secret, req.SessionToken, now)
	if err != nil {
		h.logger.WithField("correlation_id", correlationID).
			WithError(err).Info("session token rejected")
		resp.Error = "invalid or expired session"
		httputil.WriteSuccess(w, resp)
		return
	}

	highest, ok := roles.HighestPriority(req.UserRoles)
	if ok {
		resp.Role = highest
		_, resp.Authorized = h.authorized[highest]
	}
	if !resp.Authorized && resp.Error == "" {
		resp.Error = "no authorized role"
	}
	if resp.Authorized {
		resp.Error = ""
	}

	h.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"subject":        subject,
		"role":           resp.Role,
		"authorized":     resp.Authorized,
	}).Info("session validated")

	httputil.WriteSuccess(w, resp)
}
