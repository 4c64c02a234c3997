package relay

import (
	"crypto/subtle"
	"net/http"
	"slices"
)

// authorize checks the token query parameter and the Origin header of an
// upgrade request. An empty token accepts everyone.
func (r *Relay) authorize(req *http.Request) error {
	if r.config.Token != "" {
		token := req.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(r.config.Token)) != 1 {
			return ErrUnauthorized
		}
	}
	return nil
}

func (r *Relay) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" || len(r.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(r.config.AllowedOrigins, origin)
}
