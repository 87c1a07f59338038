package middleware

import (
	"fmt"
	"net/http"

	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

func (app *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("%v", p)
				app.log.Error(wrap.WithAction(r.Context(), "http_panic"), "recovered from panic", err, "path", r.URL.Path)
				w.Header().Set("Connection", "close")
				errorResponse(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
