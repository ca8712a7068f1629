package connectorgin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pilab-dev/googleconnector/api"
	"github.com/pilab-dev/googleconnector/domain"
	oautherrors "github.com/pilab-dev/googleconnector/errors"
	"github.com/pilab-dev/googleconnector/internal/federation"
	"github.com/pilab-dev/googleconnector/log"
)

// CookieConfig controls the browser session cookie that ties the redirect to the
// provider and the callback together.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// ConnectorAPI provides the HTTP handlers of the OAuth2 client endpoint.
type ConnectorAPI struct {
	service *federation.Service
	cookie  CookieConfig
	logger  log.Logger
}

// NewConnectorAPI creates a new ConnectorAPI.
func NewConnectorAPI(service *federation.Service, cookie CookieConfig, logger log.Logger) *ConnectorAPI {
	if cookie.Name == "" {
		cookie.Name = api.DefaultSessionCookie
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &ConnectorAPI{service: service, cookie: cookie, logger: logger}
}

// RegisterRoutes registers the connector routes.
func (a *ConnectorAPI) RegisterRoutes(r gin.IRouter) {
	group := r.Group(api.BasePath)
	group.Use(SecurityHeadersMiddleware())
	{
		group.GET("", a.ProvidersHandler)
		// The same URL starts the flow and receives the provider callback; it must be
		// registered as redirect_uri with the provider.
		group.GET("/:provider", a.AuthenticateHandler)
	}
}

// ProvidersHandler lists the configured providers.
func (a *ConnectorAPI) ProvidersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.ProvidersResponse{Providers: a.service.Providers()})
}

// AuthenticateHandler runs one pass of the authorization flow for the provider in the
// path: it either redirects to the provider, or completes the sign-in and redirects to
// the page the user came from (JSON identity when there is none).
func (a *ConnectorAPI) AuthenticateHandler(c *gin.Context) {
	ctx := c.Request.Context()
	providerName := c.Param("provider")

	flow, err := a.service.Flow(providerName)
	if err != nil {
		a.fail(c, err)
		return
	}

	sessionID, err := c.Cookie(a.cookie.Name)
	if err != nil || uuid.Validate(sessionID) != nil {
		sessionID = uuid.NewString()
	}
	a.setSessionCookie(c, sessionID)

	out, err := flow.Authenticate(ctx, federation.Attempt{
		SessionKey:    api.SessionKey(providerName, sessionID),
		Request:       domain.NewRequestToken(c.Request),
		FacadeContext: c,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	if out.Redirect != nil {
		c.Redirect(http.StatusFound, out.Redirect.URL)
		return
	}

	a.logger.Info(ctx, "User signed in", map[string]interface{}{
		"provider": providerName,
		"username": out.Identity.Username,
	})

	if target, ok := api.SafeRedirect(out.RedirectURL, c.Request.Host); ok {
		c.Redirect(http.StatusFound, target)
		return
	}
	c.JSON(http.StatusOK, api.NewIdentityResponse(out.Identity))
}

func (a *ConnectorAPI) setSessionCookie(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    value,
		Path:     api.BasePath,
		MaxAge:   int(a.cookie.MaxAge.Seconds()),
		Secure:   a.cookie.Secure || c.Request.TLS != nil,
		HttpOnly: true,
		// Lax keeps the cookie on the top-level navigation back from the provider.
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *ConnectorAPI) fail(c *gin.Context, err error) {
	status, body := oautherrors.FromFlowError(err)
	fields := map[string]interface{}{"provider": c.Param("provider"), "status": status}
	if status >= http.StatusInternalServerError {
		a.logger.Error(c.Request.Context(), "OAuth2 client request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		a.logger.Warn(c.Request.Context(), "OAuth2 client request rejected", fields)
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
