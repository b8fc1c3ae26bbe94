package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Authenticator resolves API keys to principals. Requests without a key
// continue anonymously; requests with an unknown key are rejected.
type Authenticator struct {
	apikeys     auth.Repository
	pepper      []byte
	sellerGroup string
}

// NewAuthenticator creates an Authenticator. Keys are looked up by their
// HMAC-SHA256 under pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte, sellerGroup string) *Authenticator {
	return &Authenticator{
		apikeys:     apikeys,
		pepper:      pepper,
		sellerGroup: sellerGroup,
	}
}

// apiKeyFromRequest extracts the key from "Authorization: Api-Key <key>" or
// the api_key header.
func apiKeyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, key, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Api-Key") {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(r.Header.Get("api_key"))
}

// Middleware attaches the authenticated principal to the request context.
func (a *Authenticator) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKeyFromRequest(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := a.authenticate(r, key)
			switch {
			case errors.Is(err, auth.ErrKeyNotFound):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case err != nil:
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			lg := zctx.From(ctx).With(zap.Int64("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(zctx.Base(ctx, lg)))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request, key string) (*auth.Principal, error) {
	hash := auth.HashAPIKey(a.pepper, key)
	info, err := a.apikeys.FindByHash(r.Context(), hash, a.sellerGroup)
	if err != nil {
		return nil, err
	}
	// Constant-time check of the stored hash against the computed one.
	want, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, auth.ErrKeyNotFound
	}
	got, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	p := info.Principal
	return &p, nil
}
