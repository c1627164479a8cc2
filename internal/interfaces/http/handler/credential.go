package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/interfaces/http/dto"
)

// CredentialHandler manages stored provider credentials. Secret values are
// write-only on this surface: responses carry field names, never values.
type CredentialHandler struct {
	BaseHandler
	repo integration.CredentialRepository
}

// NewCredentialHandler creates a CredentialHandler.
func NewCredentialHandler(repo integration.CredentialRepository) *CredentialHandler {
	return &CredentialHandler{repo: repo}
}

// RegisterRoutes registers the credential routes.
func (h *CredentialHandler) RegisterRoutes(rg *gin.RouterGroup) {
	creds := rg.Group("/credentials")
	{
		creds.GET("", h.List)
		creds.PUT("/:type/:code", h.Save)
		creds.DELETE("/:type/:code", h.Delete)
	}
}

// List returns the stored credentials, optionally filtered by provider type.
func (h *CredentialHandler) List(c *gin.Context) {
	types := []integration.ProviderType{integration.ProviderTypeChannel, integration.ProviderTypeTransporter}
	if raw := c.Query("type"); raw != "" {
		typ, ok := h.providerType(c, raw)
		if !ok {
			return
		}
		types = []integration.ProviderType{typ}
	}

	out := make([]dto.CredentialResponse, 0)
	for _, typ := range types {
		stored, err := h.repo.List(c.Request.Context(), typ)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		for _, cred := range stored {
			out = append(out, dto.CredentialFromDomain(cred))
		}
	}
	h.Success(c, out)
}

// Save stores or replaces a provider's credentials.
func (h *CredentialHandler) Save(c *gin.Context) {
	typ, code, ok := h.providerParams(c)
	if !ok {
		return
	}

	var req dto.CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.Credentials) == 0 {
		h.BadRequest(c, "credentials must not be empty")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	cred := &integration.ProviderCredential{
		Type:        typ,
		Code:        code,
		Credentials: integration.Credentials(req.Credentials),
		Active:      active,
		UpdatedAt:   time.Now(),
	}
	if err := h.repo.Save(c.Request.Context(), cred); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CredentialFromDomain(cred))
}

// Delete removes a provider's credentials.
func (h *CredentialHandler) Delete(c *gin.Context) {
	typ, code, ok := h.providerParams(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), typ, code); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *CredentialHandler) providerType(c *gin.Context, raw string) (integration.ProviderType, bool) {
	switch integration.ProviderType(raw) {
	case integration.ProviderTypeChannel:
		return integration.ProviderTypeChannel, true
	case integration.ProviderTypeTransporter:
		return integration.ProviderTypeTransporter, true
	default:
		h.BadRequest(c, "provider type must be CHANNEL or TRANSPORTER")
		return "", false
	}
}

// providerParams validates the :type/:code pair against the supported
// provider codes.
func (h *CredentialHandler) providerParams(c *gin.Context) (integration.ProviderType, string, bool) {
	typ, ok := h.providerType(c, c.Param("type"))
	if !ok {
		return "", "", false
	}

	code := c.Param("code")
	switch typ {
	case integration.ProviderTypeChannel:
		if !integration.ChannelCode(code).IsValid() {
			h.Error(c, http.StatusNotFound, dto.ErrCodeUnknownProvider, "unknown channel: "+code)
			return "", "", false
		}
	case integration.ProviderTypeTransporter:
		if !integration.TransporterCode(code).IsValid() {
			h.Error(c, http.StatusNotFound, dto.ErrCodeUnknownProvider, "unknown transporter: "+code)
			return "", "", false
		}
	}
	return typ, code, true
}
