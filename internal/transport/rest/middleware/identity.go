package middleware

import (
	"context"
	"net/http"
	"time"
)

type contextKey string

const SessionIDKey contextKey = "sessionId"

// sessionCookie stores the last resolved session id so the viewer can
// navigate within the product without carrying the query parameter.
const sessionCookie = "assessment_session"

// ResolveSession resolves the active session id: the session_id query
// parameter wins, the cookie is the stored fallback. With neither present
// there is no session to drive and no upstream call is ever attempted.
func ResolveSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sessionID,
				Path:     "/",
				Expires:  time.Now().Add(24 * time.Hour),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		} else if cookie, err := r.Cookie(sessionCookie); err == nil {
			sessionID = cookie.Value
		}

		if sessionID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"no session found - please restart the assessment from the beginning"}`))
			return
		}

		ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionID extracts the resolved session id from context
func GetSessionID(ctx context.Context) string {
	if v := ctx.Value(SessionIDKey); v != nil {
		return v.(string)
	}
	return ""
}
