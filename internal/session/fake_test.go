package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeToken is a manually completed Token.
type fakeToken struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error {
	<-t.done
	return t.err
}

func (t *fakeToken) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// fakeTransport records calls and lets tests drive callbacks.
type fakeTransport struct {
	cfg      ConnectionConfig
	handlers Handlers

	mu           sync.Mutex
	connectTok   *fakeToken
	connects     int
	subscribes   [][]string
	subscribeQoS []byte
	subTokens    []*fakeToken
	disconnects  int
	closes       int
}

func (f *fakeTransport) Connect() Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectTok
}

func (f *fakeTransport) Subscribe(topics []string, qos byte) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := newFakeToken()
	f.subscribes = append(f.subscribes, append([]string(nil), topics...))
	f.subscribeQoS = append(f.subscribeQoS, qos)
	f.subTokens = append(f.subTokens, tok)
	return tok
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeTransport) subscribeCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.subscribes...)
}

func (f *fakeTransport) subToken(i int) *fakeToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.subTokens) {
		return nil
	}
	return f.subTokens[i]
}

func (f *fakeTransport) counts() (disconnects, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects, f.closes
}

// fakeDialer hands out fakeTransports.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
}

func (d *fakeDialer) Dial(cfg ConnectionConfig, h Handlers) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		// Record the attempt so retries stay countable.
		d.transports = append(d.transports, nil)
		return nil, d.err
	}
	tr := &fakeTransport{cfg: cfg, handlers: h, connectTok: newFakeToken()}
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) at(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// recordingNotifier collects status and message events.
type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	messages []string
}

func (n *recordingNotifier) NotifyStatus(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, message)
}

func (n *recordingNotifier) NotifyMessage(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) statusList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.statuses...)
}

func (n *recordingNotifier) messageList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// recordingSpeaker collects spoken text.
type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSpeaker) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *recordingSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// gatedSpeaker blocks its first Speak until release is closed, holding the
// dispatch goroutine so later messages stay queued.
type gatedSpeaker struct {
	recordingSpeaker
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedSpeaker() *gatedSpeaker {
	return &gatedSpeaker{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedSpeaker) Speak(text string) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	s.recordingSpeaker.Speak(text)
}

var errRefused = errors.New("connection refused")

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func containsStatus(statuses []string, prefix string) bool {
	for _, s := range statuses {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
