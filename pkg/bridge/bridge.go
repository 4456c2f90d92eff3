// Package bridge implements the cross-origin message protocol between the
// CMS editing environment and embedded staging frames. Messages from origins
// outside the configured allow-list are dropped before any payload parsing.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
)

// Message protocol types.
const (
	TypeRegisterNonce     = "register-nonce"
	TypeAuthStatusRequest = "request-staging-auth-status"
	TypeAuthStatus        = "staging-auth-status"
)

// Sender delivers a reply to the window a message came from. Replies go to
// exactly one origin, never broadcast.
type Sender interface {
	Send(origin string, data []byte) error
}

// Message is one inbound cross-origin message. Origin is the sender's actual
// origin as reported by the channel, not anything the payload claims.
type Message struct {
	Origin  string
	Data    []byte
	ReplyTo Sender
}

// Status is the authentication state the bridge reports to frames.
type Status struct {
	Authenticated bool
	HasValidation bool
	IsValidating  bool
}

// StatusFunc supplies the current status at reply time.
type StatusFunc func() Status

// EnabledFunc gates the auth-status feature (features.enablePostMessage).
type EnabledFunc func() bool

type registerNoncePayload struct {
	Type   string `json:"type"`
	Nonce  string `json:"nonce"`
	Origin string `json:"origin"`
}

type authStatusRequestPayload struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	Nonce         string `json:"nonce,omitempty"`
}

type authStatusPayload struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	HasValidation bool   `json:"hasValidation"`
	IsValidating  bool   `json:"isValidating"`
	CorrelationID string `json:"correlationId,omitempty"`
	Nonce         string `json:"nonce,omitempty"`
}

// Bridge answers auth-status requests from trusted origins. It owns the
// nonce registry; nothing else writes to it.
type Bridge struct {
	trusted  map[string]struct{}
	registry NonceRegistry
	status   StatusFunc
	enabled  EnabledFunc
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// New creates a bridge trusting exactly the given origins. registry defaults
// to an unbounded in-memory registry, enabled to always-on, and metrics may
// be nil.
func New(trustedOrigins []string, registry NonceRegistry, status StatusFunc, enabled EnabledFunc, logger *observability.Logger, metrics *observability.Metrics) *Bridge {
	trusted := make(map[string]struct{}, len(trustedOrigins))
	for _, origin := range trustedOrigins {
		trusted[origin] = struct{}{}
	}
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if status == nil {
		status = func() Status { return Status{} }
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Bridge{
		trusted:  trusted,
		registry: registry,
		status:   status,
		enabled:  enabled,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run consumes messages until ctx is done or the channel closes. This is the
// bridge's listener; cancelling ctx is the teardown.
func (b *Bridge) Run(ctx context.Context, messages <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.Handle(ctx, msg)
		}
	}
}

// Handle processes one message synchronously; any reply is sent within the
// same handling turn.
func (b *Bridge) Handle(ctx context.Context, msg Message) {
	if _, ok := b.trusted[msg.Origin]; !ok {
		b.logger.WithField("origin", msg.Origin).Warn("dropped message from untrusted origin")
		b.count(observability.BridgeUntrustedOrigin)
		return
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		// Shared channel; unrelated traffic is expected noise.
		b.count(observability.BridgeIgnored)
		return
	}

	switch envelope.Type {
	case TypeRegisterNonce:
		b.handleRegisterNonce(ctx, msg)
	case TypeAuthStatusRequest:
		b.handleAuthStatusRequest(ctx, msg)
	default:
		b.count(observability.BridgeIgnored)
	}
}

func (b *Bridge) handleRegisterNonce(ctx context.Context, msg Message) {
	var payload registerNoncePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Nonce == "" {
		b.count(observability.BridgeIgnored)
		return
	}
	if payload.Origin != msg.Origin {
		b.logger.WithFields(map[string]interface{}{
			"origin":          msg.Origin,
			"declared_origin": payload.Origin,
		}).Warn("nonce registration origin mismatch, dropped")
		b.count(observability.BridgeNonceRejected)
		return
	}
	if err := b.registry.Register(ctx, msg.Origin, payload.Nonce); err != nil {
		b.logger.WithError(err).Warn("nonce registration failed")
		return
	}
	b.count(observability.BridgeNonceRegistered)
	if b.metrics != nil {
		b.metrics.NoncesRegistered.Inc()
	}
}

func (b *Bridge) handleAuthStatusRequest(ctx context.Context, msg Message) {
	if !b.enabled() {
		b.count(observability.BridgeDisabled)
		return
	}

	var payload authStatusRequestPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		b.count(observability.BridgeIgnored)
		return
	}

	if payload.Nonce != "" {
		valid, err := b.registry.Valid(ctx, msg.Origin, payload.Nonce)
		if err != nil {
			b.logger.WithError(err).Warn("nonce lookup failed, dropping request")
			return
		}
		if !valid {
			b.logger.WithField("origin", msg.Origin).Warn("unknown nonce, possible CSRF, dropped")
			b.count(observability.BridgeNonceRejected)
			return
		}
	}

	status := b.status()
	reply, err := json.Marshal(authStatusPayload{
		Type:          TypeAuthStatus,
		Authenticated: status.Authenticated,
		HasValidation: status.HasValidation,
		IsValidating:  status.IsValidating,
		CorrelationID: payload.CorrelationID,
		Nonce:         payload.Nonce,
	})
	if err != nil {
		b.logger.WithError(err).Error("encode auth status reply")
		return
	}

	if msg.ReplyTo == nil {
		return
	}
	// Reply to the exact sender at the exact sender origin.
	if err := msg.ReplyTo.Send(msg.Origin, reply); err != nil {
		b.logger.WithError(err).WithField("origin", msg.Origin).Warn("auth status reply failed")
		return
	}
	b.count(observability.BridgeStatusReplied)
}

func (b *Bridge) count(result string) {
	if b.metrics != nil {
		b.metrics.BridgeMessagesTotal.WithLabelValues(result).Inc()
	}
}
