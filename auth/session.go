package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"daybook/crypto"
	"daybook/models"
)

const (
	SessionName = "daybook-session"
	TokenHeader = "X-API-Token"

	tokenKey   = "token"
	tokenBytes = 32
)

// Identity is the authenticated user bound to a request.
type Identity struct {
	UserID   int64
	Username string
}

// SessionManager binds clients to users. Every session is a row in the
// sessions table keyed by the digest of a random token; the client holds
// the token either inside the encrypted cookie or in the X-API-Token
// header. Deleting the row ends the session for both carriers.
type SessionManager struct {
	db     *sql.DB
	store  *sessions.CookieStore
	maxAge time.Duration
	now    func() time.Time
}

func NewSessionManager(conn *sql.DB, sessionKey string, maxAgeSeconds int, secure bool) *SessionManager {
	// Two 32-byte keys derived from the session key: HMAC and AES.
	store := sessions.NewCookieStore(
		crypto.DeriveKey(sessionKey, "auth"),
		crypto.DeriveKey(sessionKey, "encryption"),
	)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(maxAgeSeconds)

	return &SessionManager{
		db:     conn,
		store:  store,
		maxAge: time.Duration(maxAgeSeconds) * time.Second,
		now:    time.Now,
	}
}

// Start issues a new session for user, sets the cookie on w and returns
// the token for header-based clients.
func (m *SessionManager) Start(w http.ResponseWriter, r *http.Request, user *models.User) (string, error) {
	token, err := crypto.RandomToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	expiresAt := m.now().Add(m.maxAge)
	_, err = m.db.ExecContext(r.Context(),
		"INSERT INTO sessions (token_hash, user_id, expires_at) VALUES (?, ?, ?)",
		crypto.TokenDigest(token), user.ID, expiresAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	// a cookie carried into a fresh login is replaced, so its row goes too
	session, _ := m.store.Get(r, SessionName)
	if prev, _ := session.Values[tokenKey].(string); prev != "" {
		if _, err := m.db.ExecContext(r.Context(), "DELETE FROM sessions WHERE token_hash = ?", crypto.TokenDigest(prev)); err != nil {
			return "", fmt.Errorf("delete replaced session: %w", err)
		}
	}
	session.Values[tokenKey] = token
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("save session cookie: %w", err)
	}

	return token, nil
}

// Require resolves the identity bound to r, or models.ErrUnauthenticated.
func (m *SessionManager) Require(r *http.Request) (Identity, error) {
	token := m.tokenFromRequest(r)
	if token == "" {
		return Identity{}, models.ErrUnauthenticated
	}

	sess := models.Session{TokenHash: crypto.TokenDigest(token)}
	var expiresAt int64
	err := m.db.QueryRowContext(r.Context(),
		`SELECT s.user_id, u.username, s.expires_at
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = ?`, sess.TokenHash).
		Scan(&sess.UserID, &sess.Username, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, models.ErrUnauthenticated
	}
	if err != nil {
		return Identity{}, fmt.Errorf("select session: %w", err)
	}

	sess.ExpiresAt = time.UnixMilli(expiresAt)
	if !m.now().Before(sess.ExpiresAt) {
		if _, err := m.db.ExecContext(r.Context(), "DELETE FROM sessions WHERE token_hash = ?", sess.TokenHash); err != nil {
			return Identity{}, fmt.Errorf("delete expired session: %w", err)
		}
		return Identity{}, models.ErrUnauthenticated
	}

	return Identity{UserID: sess.UserID, Username: sess.Username}, nil
}

// End deletes the session presented by r and expires the cookie.
func (m *SessionManager) End(w http.ResponseWriter, r *http.Request) error {
	if token := m.tokenFromRequest(r); token != "" {
		if _, err := m.db.ExecContext(r.Context(), "DELETE FROM sessions WHERE token_hash = ?", crypto.TokenDigest(token)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}

	session, _ := m.store.Get(r, SessionName)
	delete(session.Values, tokenKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// PurgeExpired removes sessions past their expiry.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := m.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", m.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return result.RowsAffected()
}

func (m *SessionManager) tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return ""
	}
	token, _ := session.Values[tokenKey].(string)
	return token
}
