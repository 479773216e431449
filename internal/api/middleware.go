package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/practice-server/internal/api/handlers"
	"github.com/isdelr/practice-server/internal/auth"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/services"
	"github.com/rs/zerolog/log"
)

// Request headers understood by the server.
const (
	HeaderAuthorization = "X-Authorization"
	HeaderAdmin         = "X-Admin"
)

// Authenticator resolves access tokens.
type Authenticator interface {
	Authenticate(token string) (models.Record, *auth.Session, error)
}

// requestLogger logs every request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("url", r.URL.RequestURI()).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("<< " + r.Method + " " + r.URL.Path)
	})
}

// recoverer turns a panic into a logged 500 with the usual error body.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			log.Error().
				Str("request_id", middleware.GetReqID(r.Context())).
				Interface("panic", rvr).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic")
			if r.Header.Get("Connection") != "Upgrade" {
				handlers.WriteError(w, http.StatusInternalServerError, "Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// answerOptions ends OPTIONS requests that are not CORS preflights with an
// empty 200.
func answerOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// throttle holds requests while throttling is switched on.
func throttle(util services.UtilServiceProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if delay := util.ThrottleDelay(); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-r.Context().Done():
					timer.Stop()
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the caller before routing. A present but invalid
// token fails the request; it never degrades to anonymous.
func authenticate(sessions Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := services.RequestContext{}
			_, rc.Admin = r.Header[http.CanonicalHeaderKey(HeaderAdmin)]

			if values, ok := r.Header[http.CanonicalHeaderKey(HeaderAuthorization)]; ok {
				token := ""
				if len(values) > 0 {
					token = values[0]
				}
				user, session, err := sessions.Authenticate(token)
				if err != nil {
					log.Debug().Err(err).Msg("Rejected access token")
					handlers.WriteError(w, http.StatusForbidden, "Invalid access token")
					return
				}
				rc.User, rc.Session = user, session
			}

			next.ServeHTTP(w, r.WithContext(handlers.WithRequestContext(r.Context(), rc)))
		})
	}
}
