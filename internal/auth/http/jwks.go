package http

import (
	"encoding/json"
	"net/http"

	"github.com/microstore/microstore/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
// Resource servers fetch this document to verify access token signatures.
// Unlike token responses, the key set is cacheable; the max-age matches the
// guard's key cache TTL.
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(keys.PublicJWKS())
	}
}
