package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"courtq/pkg/auth"
	apperrors "courtq/pkg/errors"
	httputil "courtq/pkg/http"
	"courtq/pkg/logger"
)

const (
	SignatureHeader = "X-Payment-Signature"
	PaymentIDHeader = "X-Payment-ID"
)

// Authenticate attaches the caller's identity to the request context. A
// bearer token is resolved through resolver. When webhookSecret is set, a
// request signed with it in X-Payment-Signature identifies the payment
// provider instead. The signature covers method, path, payment id and body,
// so it cannot be replayed against another reservation.
func Authenticate(resolver auth.Resolver, webhookSecret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signature := extractSignature(r); signature != "" && webhookSecret != "" {
				id, err := verifyPaymentWebhook(r, signature, webhookSecret)
				if err != nil {
					reject(w, log, r, err.Error())
					return
				}
				next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
				return
			}

			id, err := resolver.Resolve(auth.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				reason := "Invalid identity token"
				if errors.Is(err, auth.ErrMissingToken) {
					reason = "Missing bearer token"
				}
				reject(w, log, r, reason)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func verifyPaymentWebhook(r *http.Request, signature, secret string) (auth.Identity, error) {
	body, err := readAndRestoreBody(r)
	if err != nil {
		return auth.Identity{}, errors.New("failed to read request body")
	}
	paymentID := r.Header.Get(PaymentIDHeader)
	if paymentID == "" {
		return auth.Identity{}, errors.New("missing payment id")
	}
	if !verifySignature(Sign(r.Method, r.URL.Path, paymentID, body, secret), signature) {
		return auth.Identity{}, errors.New("invalid webhook signature")
	}

	return auth.Identity{RequesterID: "payment:" + paymentID, Role: auth.RolePayment}, nil
}

func extractSignature(r *http.Request) string {
	header := r.Header.Get(SignatureHeader)
	if header == "" {
		return ""
	}

	signature, found := strings.CutPrefix(header, "sha256=")
	if found {
		return signature
	}

	return header
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}

// Sign returns the hex HMAC-SHA256 under secret of the newline-joined
// method, path and payment id followed by the body.
func Sign(method, path, paymentID string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + "\n" + path + "\n" + paymentID + "\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(expected, received string) bool {
	return hmac.Equal([]byte(expected), []byte(received))
}

func reject(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Request authentication failed",
		"request_id", requestID(r),
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	_ = httputil.WriteError(w, apperrors.Unauthorized(reason))
}
