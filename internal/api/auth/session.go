package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/access"
	"github.com/receiptdesk/receiptdesk/internal/database"
)

// Session keys.
const (
	sessionUserID   = "user_id"
	sessionUsername = "username"
	sessionRole     = "role"
)

const identityKey = "identity"

// SaveIdentity replaces the session contents with the identity of u.
func SaveIdentity(s sessions.Session, u *database.User) error {
	s.Clear()
	s.Set(sessionUserID, u.ID)
	s.Set(sessionUsername, u.Username)
	s.Set(sessionRole, string(u.Role))
	return s.Save()
}

// renewSession drops the stored record of the request's session so the next
// save issues a fresh session id. Stores without server-side state keep no id
// and are left alone.
func renewSession(r *http.Request, store sessions.Store, name string) error {
	raw, err := store.Get(r, name)
	if err != nil || raw.ID == "" {
		// an undecodable cookie already yields a new session
		return nil
	}

	opts := *raw.Options
	expired := opts
	expired.MaxAge = -1
	raw.Options = &expired
	if err := store.Save(r, discardWriter{header: http.Header{}}, raw); err != nil {
		return err
	}

	raw.Options = &opts
	raw.ID = ""
	raw.IsNew = true
	return nil
}

// discardWriter swallows the expiry cookie written while dropping a session;
// the login response carries the new cookie instead.
type discardWriter struct {
	header http.Header
}

func (w discardWriter) Header() http.Header         { return w.header }
func (w discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w discardWriter) WriteHeader(int)             {}

// identityFromSession returns nil unless the session holds a complete identity.
func identityFromSession(s sessions.Session) *access.Identity {
	userID, ok := s.Get(sessionUserID).(uint)
	if !ok || userID == 0 {
		return nil
	}
	username, _ := s.Get(sessionUsername).(string)
	role, _ := s.Get(sessionRole).(string)
	if !database.Role(role).Valid() {
		return nil
	}
	return &access.Identity{
		UserID:   userID,
		Username: username,
		Role:     database.Role(role),
	}
}

// CurrentIdentity returns the identity attached to the request by
// LoadIdentity, or nil if the caller is not logged in.
func CurrentIdentity(c *gin.Context) *access.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*access.Identity)
	return id
}
