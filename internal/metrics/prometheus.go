package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Collectors exist from package init so the flow can record before registration.
var (
	AuthRedirectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_connector_redirects_total",
		Help: "Total number of redirects issued to the identity provider.",
	}, []string{"provider"})
	AuthSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_connector_logins_success_total",
		Help: "Total number of successful authentications.",
	}, []string{"provider"})
	AuthFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_connector_logins_failure_total",
		Help: "Total number of failed authentications by reason.",
	}, []string{"provider", "reason"})
	TokensRefreshedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth2_connector_tokens_refreshed_total",
		Help: "Total number of access tokens renewed with a refresh token.",
	}, []string{"provider"})
)

// Failure reasons.
const (
	ReasonProviderError = "provider_error"
	ReasonInvalidState  = "invalid_state"
	ReasonExchange      = "exchange_failed"
	ReasonNoToken       = "no_token"
	ReasonOwner         = "resource_owner"
)

// InitCustomMetrics registers the collectors with reg. It should be called once at
// application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"AuthRedirectsTotal":   AuthRedirectsTotal,
		"AuthSuccessTotal":     AuthSuccessTotal,
		"AuthFailureTotal":     AuthFailureTotal,
		"TokensRefreshedTotal": TokensRefreshedTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
