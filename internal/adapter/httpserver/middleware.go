package httpserver

import (
	"net/http"

	"github.com/centrifugal/centrifuge"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/tilecast/internal/platform/correlation"
)

// correlationMiddleware honours a caller-supplied X-Correlation-ID so a
// producer can trace its ingest through the relay logs.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlation.Header)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// centrifugeCredentials makes the viewer's clientId the centrifuge user id, so
// a reconnecting viewer replaces its previous connection.
func centrifugeCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get(clientIDParam)
		if len(clientID) > maxClientIDLength {
			http.Error(w, "clientId too long", http.StatusBadRequest)
			return
		}

		cred := &centrifuge.Credentials{UserID: clientID}
		next.ServeHTTP(w, r.WithContext(centrifuge.SetCredentials(r.Context(), cred)))
	})
}
