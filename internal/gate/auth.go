package gate

import (
	"crypto/subtle"
	"net/http"

	"github.com/echoes-app/demo-relay/internal/api"
	"github.com/echoes-app/demo-relay/internal/metrics"
)

// PasswordHeader carries the shared demo credential.
const PasswordHeader = "X-Demo-Password"

// PasswordAuth rejects requests whose X-Demo-Password header does not match
// the configured shared secret.
func PasswordAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(PasswordHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				metrics.GateRejectionsTotal.WithLabelValues("auth").Inc()
				api.HandleError(w, api.ErrAuth)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
