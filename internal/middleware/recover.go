package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/worksuite/worksuite-api/internal/pkg/errorhandler"
)

// Recover turns a handler panic into a logged 500. http.ErrAbortHandler is re-raised for net/http.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			errorhandler.HandlePanicError(r.Context(), w, r, rec, debug.Stack())
		}()

		next.ServeHTTP(w, r)
	})
}
