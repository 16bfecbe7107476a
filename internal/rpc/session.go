package rpc

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Session is the authenticated state of a Transport: the server identity,
// the user id returned by login, and the cookies the server issued.
//
// A Session is owned by exactly one Transport. Callers receive a read-only
// handle; only the Transport authenticates or invalidates it.
type Session struct {
	mu sync.RWMutex

	url      *url.URL
	database string
	login    string

	uid           int64
	username      string
	serverVersion string
	authenticated bool
	jar           *cookiejar.Jar
}

func newSession(u *url.URL, database, login string) *Session {
	s := &Session{url: u, database: database, login: login}
	s.jar = newJar()
	return s
}

func newJar() *cookiejar.Jar {
	// cookiejar.New never returns an error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// URL returns the server base address.
func (s *Session) URL() string { return s.url.String() }

// Database returns the database name the session logs into.
func (s *Session) Database() string { return s.database }

// Login returns the login name used for authentication.
func (s *Session) Login() string { return s.login }

// UID returns the authenticated user id, or 0.
func (s *Session) UID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

// Username returns the display login reported by the server.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// ServerVersion returns the server version string reported at login.
func (s *Session) ServerVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverVersion
}

// Authenticated reports whether the session currently holds a valid login.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Cookies returns the cookies that would be sent with the next request.
func (s *Session) Cookies() []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jar.Cookies(s.url)
}

// reset discards all cookies and login state before a fresh login.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = newJar()
	s.uid = 0
	s.username = ""
	s.serverVersion = ""
	s.authenticated = false
}

func (s *Session) invalidate() { s.reset() }

func (s *Session) establish(uid int64, username, serverVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = uid
	s.username = username
	s.serverVersion = serverVersion
	s.authenticated = true
}

func (s *Session) attach(req *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.jar.Cookies(req.URL) {
		req.AddCookie(c)
	}
}

func (s *Session) store(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar.SetCookies(u, cookies)
}
