package services

import (
	"database/sql"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/consentkeeper/internal/client/client"
	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

// Deps carries the collaborators a service is built from. Only DB is
// required, plus API in ModeCustom.
type Deps struct {
	DB  *sql.DB
	API client.API

	Logger  logging.Logger
	Metrics *metrics.Metrics

	// Transport and Interceptors shape the HTTP stack in ModeHosted.
	// The first interceptor is the outermost.
	Transport      http.RoundTripper
	Interceptors   []fetcher.Interceptor
	TracerProvider trace.TracerProvider

	Observer Observer
	Now      func() time.Time
}
