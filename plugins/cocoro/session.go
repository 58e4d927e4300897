package cocoro

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
)

// Session is the cookie state produced by one successful login. It is
// replaced wholesale on re-login and never mutated after creation, apart from
// cookies the portal sets on later responses.
type Session struct {
	jar        *cookiejar.Jar
	loggedInAt time.Time
	restored   bool

	// The jar only hands back name and value, so every Set-Cookie is also
	// kept here with its attributes for persistence.
	mu      sync.Mutex
	cookies map[cookieID]sessionstore.Cookie
}

type cookieID struct {
	domain string
	path   string
	name   string
}

func newSession() (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Session{jar: jar, cookies: make(map[cookieID]sessionstore.Cookie)}, nil
}

// LoggedInAt reports when the session was created.
func (s *Session) LoggedInAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loggedInAt
}

// transport wraps next so cookies set on any response are recorded.
func (s *Session) transport(next http.RoundTripper, now func() time.Time) http.RoundTripper {
	return &cookieRecorder{next: next, session: s, now: now}
}

type cookieRecorder struct {
	next    http.RoundTripper
	session *Session
	now     func() time.Time
}

func (r *cookieRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	r.session.record(req.URL, resp.Cookies(), r.now())
	return resp, nil
}

func (s *Session) record(u *url.URL, cookies []*http.Cookie, now time.Time) {
	if len(cookies) == 0 {
		return
	}
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ck := range cookies {
		stored := sessionstore.Cookie{
			URL:      origin,
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HttpOnly: ck.HttpOnly,
		}
		switch {
		case ck.MaxAge > 0:
			expires := now.Add(time.Duration(ck.MaxAge) * time.Second).UTC()
			stored.Expires = &expires
		case !ck.Expires.IsZero():
			expires := ck.Expires.UTC()
			stored.Expires = &expires
		}
		id := idFor(stored, u)
		if ck.MaxAge < 0 || (stored.Expires != nil && !stored.Expires.After(now)) {
			delete(s.cookies, id)
			continue
		}
		s.cookies[id] = stored
	}
}

// idFor keys a cookie the way the jar does: by domain, path and name.
func idFor(c sessionstore.Cookie, u *url.URL) cookieID {
	domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
	if domain == "" {
		domain = strings.ToLower(u.Hostname())
	}
	p := c.Path
	if p == "" || p[0] != '/' {
		p = defaultCookiePath(u.Path)
	}
	return cookieID{domain: domain, path: p, name: c.Name}
}

func defaultCookiePath(p string) string {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func (s *Session) document(now time.Time) sessionstore.Document {
	doc := sessionstore.Document{
		SchemaVersion: sessionstore.SchemaVersion,
		SavedAt:       now.UTC(),
		LoggedInAt:    s.loggedInAt.UTC(),
	}
	s.mu.Lock()
	for _, c := range s.cookies {
		if c.Expires != nil && !c.Expires.After(now) {
			continue
		}
		doc.Cookies = append(doc.Cookies, c)
	}
	s.mu.Unlock()
	sort.Slice(doc.Cookies, func(i, j int) bool {
		a, b := doc.Cookies[i], doc.Cookies[j]
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})
	return doc
}

func sessionFromDocument(doc sessionstore.Document, now time.Time) (*Session, error) {
	session, err := newSession()
	if err != nil {
		return nil, err
	}
	for _, c := range doc.Cookies {
		if c.Expires != nil && !c.Expires.After(now) {
			continue
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			return nil, fmt.Errorf("stored session url %q: %w", c.URL, err)
		}
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.Expires != nil {
			cookie.Expires = *c.Expires
		}
		session.jar.SetCookies(u, []*http.Cookie{cookie})
		session.cookies[idFor(c, u)] = c
	}
	if len(session.cookies) == 0 {
		return nil, errors.New("stored session has no live cookies")
	}
	session.loggedInAt = doc.LoggedInAt
	session.restored = true
	return session, nil
}

// sessionKey names the stored session without exposing the account email.
func sessionKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return "cocoro-" + hex.EncodeToString(sum[:8])
}

func (c *Client) persistSession(ctx context.Context, session *Session) {
	if c.store == nil {
		return
	}
	doc := session.document(c.now())
	data, err := sessionstore.EncodeDocument(doc)
	if err == nil {
		err = c.store.Save(ctx, c.storeKey, data)
	}
	if err != nil {
		c.logger.Warn("persist session failed", "error", err)
		sessionstore.RecordPersist(c.storeKey, false)
		return
	}
	sessionstore.RecordPersist(c.storeKey, true)
}

func (c *Client) restoreSession(ctx context.Context) {
	if c.store == nil {
		return
	}
	data, err := c.store.Load(ctx, c.storeKey)
	if err != nil {
		if !errors.Is(err, sessionstore.ErrNotFound) {
			c.logger.Warn("load stored session failed", "error", err)
		}
		return
	}
	doc, err := sessionstore.DecodeDocument(data)
	if err != nil {
		c.logger.Warn("stored session is invalid", "error", err)
		return
	}
	session, err := sessionFromDocument(doc, c.now())
	if err != nil {
		c.logger.Warn("stored session is unusable", "error", err)
		return
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.logger.Info("restored stored session", "logged_in_at", doc.LoggedInAt)
}

// loginBackoff gates implicit re-logins after failures so the SSO portal is
// not hammered.
type loginBackoff struct {
	initial time.Duration
	max     time.Duration

	mu       sync.Mutex
	delay    time.Duration
	failures int
	until    time.Time
}

func newLoginBackoff(initial, max time.Duration) *loginBackoff {
	return &loginBackoff{initial: initial, max: max}
}

func (b *loginBackoff) fail(now time.Time) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delay == 0 {
		b.delay = b.initial
	} else {
		b.delay *= 2
		if b.delay > b.max {
			b.delay = b.max
		}
	}
	b.failures++
	b.until = now.Add(b.delay)
	return b.until
}

func (b *loginBackoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = 0
	b.failures = 0
	b.until = time.Time{}
}

// blockedUntil returns a non-zero time while re-logins are gated.
func (b *loginBackoff) blockedUntil(now time.Time) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.until.IsZero() || !now.Before(b.until) {
		return time.Time{}
	}
	return b.until
}
