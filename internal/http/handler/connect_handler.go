package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/http/middleware"
	connectsvc "github.com/smallbiznis/valora-connect/internal/service/connect"
)

// ConnectHandler exposes the OAuth connection endpoints.
type ConnectHandler struct {
	Service connectsvc.Service
}

// NewConnectHandler creates the handler set.
func NewConnectHandler(service connectsvc.Service) *ConnectHandler {
	return &ConnectHandler{Service: service}
}

// Launch redirects the caller into the provider's authorization flow. The
// repeated "scopes" query parameters carry internal capability ids; the
// translation to provider-native scopes happens inside the service.
func (h *ConnectHandler) Launch(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Authentication required."})
		return
	}
	providerID := c.Param("provider")
	scopes := c.QueryArray("scopes")

	authURL, err := h.Service.Launch(c.Request.Context(), principal.OrgID, principal.UserID, providerID, scopes)
	if err != nil {
		status, code := classify(err)
		c.JSON(status, gin.H{"error": code, "message": publicMessage(code)})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback receives the provider redirect-back. Success sends the browser to
// the application; every failure renders the same generic shape with no
// provider internals or token material.
func (h *ConnectHandler) Callback(c *gin.Context) {
	providerID := c.Param("provider")

	result, err := h.Service.Callback(c.Request.Context(), providerID, c.Request.URL.Query())
	if err != nil {
		_, code := classify(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":           "failed",
			"error":            code,
			"errorDescription": publicMessage(code),
			"provider":         providerID,
		})
		return
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// Audit evaluates a batch of required capabilities and triggers against the
// caller's org connections.
func (h *ConnectHandler) Audit(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Authentication required."})
		return
	}
	var req connectsvc.AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Malformed audit request."})
		return
	}

	results, err := h.Service.Audit(c.Request.Context(), principal.OrgID, principal.UserID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "message": "Audit failed."})
		return
	}
	if results == nil {
		results = []connectsvc.ProviderAuditResult{}
	}
	c.JSON(http.StatusOK, results)
}

// Providers lists the registered providers with connection state.
func (h *ConnectHandler) Providers(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Authentication required."})
		return
	}
	providers, err := h.Service.ListProviders(c.Request.Context(), principal.OrgID, principal.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "message": "Provider listing failed."})
		return
	}
	c.JSON(http.StatusOK, providers)
}

// Deactivate flips the org's connection for a provider to inactive.
func (h *ConnectHandler) Deactivate(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Authentication required."})
		return
	}
	providerID := c.Param("provider")
	if err := h.Service.Deactivate(c.Request.Context(), principal.OrgID, providerID); err != nil {
		switch {
		case errors.Is(err, domain.ErrProviderNotFound), errors.Is(err, domain.ErrConnectionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No active connection for provider."})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "message": "Deactivation failed."})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// Healthz is the liveness probe.
func (h *ConnectHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusBadRequest, "provider_not_found"
	case errors.Is(err, domain.ErrOAuthUnsupported):
		return http.StatusBadRequest, "oauth_unsupported"
	case errors.Is(err, domain.ErrCallbackUnsupported):
		return http.StatusBadRequest, "callback_unsupported"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, domain.ErrExchangeFailed):
		return http.StatusBadRequest, "exchange_failed"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// publicMessage keeps client-facing text generic: provider error internals
// and secrets stay in the logs.
func publicMessage(code string) string {
	switch code {
	case "provider_not_found":
		return "Unknown provider."
	case "oauth_unsupported":
		return "Provider does not support OAuth authorization."
	case "callback_unsupported":
		return "Provider does not support OAuth callbacks."
	case "invalid_state":
		return "Authorization state is invalid or already used."
	case "exchange_failed":
		return "Connection failed. Please try again."
	case "invalid_request":
		return "Invalid request."
	default:
		return "Internal error."
	}
}
