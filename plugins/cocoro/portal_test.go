package cocoro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/joshp123/gohome-cocoro/internal/sessionstore"
)

const (
	testEmail    = "user@example.com"
	testPassword = "secret"
	testDeviceID = "dev-1"
	testModel    = "KI-ND50"

	sensorBody = `{"objects_aircleaner_020":{"body":{"data":[{"k1":{"s1":"19","s2":"32","s6":"01"}},{"k3":{"s5":"00","s7":"ff"}}]}}}`
)

// fakePortal imitates the app API and the SSO portal on one server.
type fakePortal struct {
	t       *testing.T
	baseURL string

	mu           sync.Mutex
	rejectLogin  bool
	token        string
	force401     int
	logins       int
	loginPosts   int
	requests     map[string]int
	controlBody  []byte
	propertyBody string

	// apiCookiePath, when set, adds a second login cookie scoped to that
	// path which data requests must also carry.
	apiCookiePath string

	// propertyGate, when set, holds property reads until it is closed.
	propertyGate chan struct{}
	waiting      int
}

func newFakePortal(t *testing.T) (*fakePortal, *httptest.Server) {
	t.Helper()
	p := &fakePortal{t: t, requests: make(map[string]int), propertyBody: sensorBody}
	server := httptest.NewServer(p)
	t.Cleanup(server.Close)
	p.baseURL = server.URL
	return p, server
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == pathProperties {
		p.mu.Lock()
		gate := p.propertyGate
		if gate != nil {
			p.waiting++
		}
		p.mu.Unlock()
		if gate != nil {
			<-gate
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests[r.URL.Path]++

	switch r.URL.Path {
	case pathDiscover:
		writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": p.baseURL + pathSSOView + "?exsiteId=" + exsiteID})
		return
	case pathSSOView:
		w.WriteHeader(http.StatusOK)
		return
	case pathSSOAction:
		p.loginPosts++
		if r.Method != http.MethodPost {
			p.t.Errorf("expected POST to %s, got %s", pathSSOAction, r.Method)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("memberId") != testEmail || r.PostForm.Get("exsiteId") != exsiteID ||
			r.PostForm.Get("captchaText") != "1" || r.PostForm.Get("autoLogin") != "on" {
			p.t.Errorf("unexpected login form: %v", r.PostForm)
		}
		if p.rejectLogin || r.PostForm.Get("password") != testPassword {
			http.Redirect(w, r, "/app/top?login=failure", http.StatusFound)
			return
		}
		p.logins++
		p.token = fmt.Sprintf("token-%d", p.logins)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: p.token, Path: "/"})
		if p.apiCookiePath != "" {
			http.SetCookie(w, &http.Cookie{Name: "api_token", Value: p.token, Path: p.apiCookiePath, HttpOnly: true, MaxAge: 3600})
		}
		http.Redirect(w, r, "/app/top?login=success", http.StatusFound)
		return
	case "/app/top":
		w.WriteHeader(http.StatusOK)
		return
	}

	cookie, err := r.Cookie("JSESSIONID")
	if err != nil || cookie.Value != p.token || p.token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if p.apiCookiePath != "" {
		if api, err := r.Cookie("api_token"); err != nil || api.Value != p.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	if p.force401 > 0 {
		p.force401--
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case pathProperties:
		q := r.URL.Query()
		if q.Get("device_id") != testDeviceID || q.Get("epc") != "0x80+0x86" || q.Get("opc") != "k1+k2+k3" ||
			q.Get("event_key") != "echonet_property" || q.Get("count") != "1" {
			p.t.Errorf("unexpected property query: %v", q)
		}
		_, _ = io.WriteString(w, p.propertyBody)
	case pathControl:
		p.controlBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"result":"ok"}`)
	case pathDevices:
		_, _ = io.WriteString(w, `{"devices":[{"device_id":"dev-1","name":"Living Room","model_name":"KI-ND50","online":true},{"device_id":"","name":"ghost"}]}`)
	default:
		p.t.Errorf("unexpected path: %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakePortal) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[path]
}

func (p *fakePortal) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.requests {
		n += c
	}
	return n
}

func (p *fakePortal) waitingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

func (p *fakePortal) loginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func (p *fakePortal) loginPostCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginPosts
}

func (p *fakePortal) lastControlBody() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controlBody
}

func (p *fakePortal) set(fn func(p *fakePortal)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func testConfig(baseURL string) Config {
	return Config{
		Email:         testEmail,
		Password:      testPassword,
		DeviceID:      testDeviceID,
		ModelName:     testModel,
		AppBaseURL:    baseURL,
		PortalBaseURL: baseURL,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.data[key]; ok {
		return data, nil
	}
	return nil, sessionstore.ErrNotFound
}

func (m *memoryStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = data
	return nil
}

func decodeJSON(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}
