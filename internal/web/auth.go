package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/assetflow/internal/auth"
	"github.com/erazemk/assetflow/internal/store"
)

type loginPage struct {
	PageData
	Username string
	Next     string
}

// LoginPage handles GET /login.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "login.html", &loginPage{
		PageData: PageData{Title: "Sign in"},
		Next:     safeNext(r.URL.Query().Get("next")),
	})
}

// LoginSubmit handles POST /login.
func (s *Server) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	next := safeNext(r.FormValue("next"))

	fail := func(status int, msg string) {
		s.Templates.RenderStatus(w, status, "login.html", &loginPage{
			PageData: PageData{Title: "Sign in", Error: msg},
			Username: username,
			Next:     next,
		})
	}

	if username == "" || password == "" {
		fail(http.StatusBadRequest, "Enter your employee id and password.")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), s.DB, username)
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		fail(http.StatusInternalServerError, "Sign in failed.")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		slog.Warn("web login failed", "username", username, "remote", r.RemoteAddr)
		fail(http.StatusUnauthorized, "Wrong employee id or password.")
		return
	}

	token, err := auth.GenerateToken(s.JWTSecret, user, 0)
	if err != nil {
		slog.Error("failed to generate token", "error", err)
		fail(http.StatusInternalServerError, "Sign in failed.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		// Lax so deep links opened from notification emails keep the session.
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.TokenExpiry / time.Second),
	})

	slog.Info("user signed in", "user", user.Username, "role", user.Role)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// Logout handles POST /logout. The token is revoked, not just forgotten.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		if claims, err := auth.ValidateToken(s.JWTSecret, cookie.Value); err == nil {
			expiresAt := time.Now().Add(auth.TokenExpiry)
			if claims.ExpiresAt != nil {
				expiresAt = claims.ExpiresAt.Time
			}
			if err := store.RevokeToken(r.Context(), s.DB, claims.ID, expiresAt); err != nil {
				slog.Error("failed to revoke token", "error", err)
			} else {
				slog.Info("user signed out", "user", claims.Username)
			}
		}
	}
	clearAuthCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
