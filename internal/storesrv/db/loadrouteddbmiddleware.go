package db

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/storeforge/storeforge/internal/common/httpx"
)

// LoadRoutedDBMiddleware checks out a routed db connection for the request
// and returns it to the pool after the request is served.
func LoadRoutedDBMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := ConnCtx(r.Context())
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("unable to get db connection")
			httpx.ErrApplicationError("unable to service request at this time").Send(w)
			return
		}
		defer func() {
			if dbConn := DB(ctx); dbConn != nil {
				dbConn.Close(context.Background()) // background so a canceled request still releases the conn
			}
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
