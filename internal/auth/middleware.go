package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware resolves bearer credentials into sessions on every request.
type Middleware struct {
	guard  *Guard
	policy Policy
	logger *zap.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(guard *Guard, policy Policy, logger *zap.Logger) (*Middleware, error) {
	if guard == nil {
		return nil, errors.New("auth middleware: nil guard")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{guard: guard, policy: policy, logger: logger}, nil
}

// Wrap applies session resolution to the handler. Role checks happen inside
// the services, which see the resolved session only.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		session, err := m.guard.Resolve(r.Context(), extractBearer(r))
		if err != nil {
			if errors.Is(err, ErrForbidden) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			m.logger.Debug("session resolution failed", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
