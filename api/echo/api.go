package echo

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/googleconnector/api"
	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/errors"
	"github.com/pilab-dev/googleconnector/internal/federation"
	"github.com/pilab-dev/googleconnector/log"
)

// ConnectorAPI exposes the OAuth2 client endpoint on an echo server.
type ConnectorAPI struct {
	service      *federation.Service
	cookieName   string
	cookieSecure bool
	cookieMaxAge time.Duration
	logger       log.Logger
}

// NewConnectorAPI initializes the connector API.
func NewConnectorAPI(service *federation.Service, cookieName string, secure bool, maxAge time.Duration, logger log.Logger) *ConnectorAPI {
	if cookieName == "" {
		cookieName = api.DefaultSessionCookie
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &ConnectorAPI{
		service:      service,
		cookieName:   cookieName,
		cookieSecure: secure,
		cookieMaxAge: maxAge,
		logger:       logger,
	}
}

// RegisterRoutes registers the connector routes.
func (ca *ConnectorAPI) RegisterRoutes(e *echo.Echo) {
	e.GET(api.BasePath, ca.ProvidersHandler)
	e.GET(api.BasePath+"/:provider", ca.AuthenticateHandler)
}

// ProvidersHandler lists the configured providers.
func (ca *ConnectorAPI) ProvidersHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, api.ProvidersResponse{Providers: ca.service.Providers()})
}

// AuthenticateHandler starts the authorization flow or consumes the callback.
func (ca *ConnectorAPI) AuthenticateHandler(c echo.Context) error {
	providerName := c.Param("provider")

	flow, err := ca.service.Flow(providerName)
	if err != nil {
		return ca.fail(c, providerName, err)
	}

	sessionID := ""
	if cookie, err := c.Cookie(ca.cookieName); err == nil && uuid.Validate(cookie.Value) == nil {
		sessionID = cookie.Value
	} else {
		sessionID = uuid.NewString()
	}
	c.SetCookie(&http.Cookie{
		Name:     ca.cookieName,
		Value:    sessionID,
		Path:     api.BasePath,
		MaxAge:   int(ca.cookieMaxAge.Seconds()),
		Secure:   ca.cookieSecure || c.IsTLS(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	out, err := flow.Authenticate(c.Request().Context(), federation.Attempt{
		SessionKey:    api.SessionKey(providerName, sessionID),
		Request:       domain.NewRequestToken(c.Request()),
		FacadeContext: c,
	})
	if err != nil {
		return ca.fail(c, providerName, err)
	}

	if out.Redirect != nil {
		return c.Redirect(http.StatusFound, out.Redirect.URL)
	}

	ca.logger.Info(c.Request().Context(), "User signed in", map[string]interface{}{
		"provider": providerName,
		"username": out.Identity.Username,
	})
	if target, ok := api.SafeRedirect(out.RedirectURL, c.Request().Host); ok {
		return c.Redirect(http.StatusFound, target)
	}
	return c.JSON(http.StatusOK, api.NewIdentityResponse(out.Identity))
}

func (ca *ConnectorAPI) fail(c echo.Context, providerName string, err error) error {
	ctx := c.Request().Context()
	status, body := errors.FromFlowError(err)
	fields := map[string]interface{}{"provider": providerName, "status": status}
	if status >= http.StatusInternalServerError {
		ca.logger.Error(ctx, "OAuth2 client request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		ca.logger.Warn(ctx, "OAuth2 client request rejected", fields)
	}
	return c.JSON(status, body)
}
