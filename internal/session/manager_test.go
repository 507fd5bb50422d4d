package session

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, delay time.Duration) (*Manager, *fakeDialer, *recordingNotifier, *recordingSpeaker) {
	t.Helper()

	dialer := &fakeDialer{}
	notifier := &recordingNotifier{}
	speaker := &recordingSpeaker{}

	m, err := New(Options{
		Dial:           dialer.Dial,
		Speaker:        speaker,
		Notifier:       notifier,
		ReconnectDelay: delay,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)

	return m, dialer, notifier, speaker
}

// listen drives transport i from connected to listening.
func listen(t *testing.T, m *Manager, tr *fakeTransport) {
	t.Helper()
	tr.handlers.OnConnected(false)
	waitFor(t, time.Second, "subscribe call", func() bool { return tr.subToken(0) != nil })
	tr.subToken(0).complete(nil)
	waitFor(t, time.Second, "listening state", func() bool { return m.State() == StateListening })
}

func TestNew_RequiresDialer(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoDialer) {
		t.Errorf("New() error = %v, want ErrNoDialer", err)
	}
}

func TestManager_InitialState(t *testing.T) {
	m, _, _, _ := newTestManager(t, time.Second)

	snap := m.Status()
	if snap.State != StateIdle {
		t.Errorf("State = %q, want %q", snap.State, StateIdle)
	}
	if snap.ReconnectPending {
		t.Error("ReconnectPending = true before Start")
	}
}

func TestStart_RejectsInvalidConfig(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, time.Second)

	cfg := validConfig()
	cfg.Topics = []string{" "}

	if err := m.Start(cfg); !errors.Is(err, ErrNoTopics) {
		t.Fatalf("Start() error = %v, want ErrNoTopics", err)
	}
	if dialer.count() != 0 {
		t.Errorf("dial count = %d, want 0", dialer.count())
	}
	if m.State() != StateIdle {
		t.Errorf("State = %q, want %q", m.State(), StateIdle)
	}
}

func TestStart_SubscribesAllTopicsInOneBatch(t *testing.T) {
	m, dialer, notifier, _ := newTestManager(t, time.Second)

	cfg := validConfig()
	cfg.Topics = ParseTopics("a, b ,c")
	if err := m.Start(cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if m.State() != StateConnecting {
		t.Errorf("State after Start = %q, want %q", m.State(), StateConnecting)
	}
	tr := dialer.at(0)
	if tr.cfg.BrokerURL() != "tcp://broker.emqx.io:1883" {
		t.Errorf("dialled %q", tr.cfg.BrokerURL())
	}

	listen(t, m, tr)

	calls := tr.subscribeCalls()
	if len(calls) != 1 {
		t.Fatalf("subscribe calls = %d, want 1", len(calls))
	}
	if !slices.Equal(calls[0], []string{"a", "b", "c"}) {
		t.Errorf("subscribed %v, want [a b c]", calls[0])
	}
	if tr.subscribeQoS[0] != QoSAtLeastOnce {
		t.Errorf("qos = %d, want %d", tr.subscribeQoS[0], QoSAtLeastOnce)
	}

	statuses := notifier.statusList()
	if !slices.Contains(statuses, "subscribed to topics: a, b, c") {
		t.Errorf("statuses = %v, want subscribed message", statuses)
	}
	if !containsStatus(statuses, "connecting to tcp://broker.emqx.io:1883") {
		t.Errorf("statuses = %v, want connecting message", statuses)
	}
}

func TestStart_ReplacesExistingSession(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := dialer.at(0)
	listen(t, m, first)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if dialer.count() != 2 {
		t.Fatalf("dial count = %d, want 2", dialer.count())
	}
	if d, c := first.counts(); d != 1 || c != 1 {
		t.Errorf("first transport disconnects/closes = %d/%d, want 1/1", d, c)
	}

	// Callbacks from the replaced session are ignored.
	first.handlers.OnConnectionLost(errors.New("late"))
	if m.State() != StateConnecting {
		t.Errorf("State = %q, want %q", m.State(), StateConnecting)
	}
}

func TestConnectFailure_ArmsReconnect(t *testing.T) {
	m, dialer, notifier, _ := newTestManager(t, 30*time.Millisecond)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	dialer.at(0).connectTok.complete(errRefused)

	waitFor(t, time.Second, "failed state", func() bool { return m.State() == StateFailed || dialer.count() > 1 })
	if !containsStatus(notifier.statusList(), "connection failed: connection refused") {
		t.Errorf("statuses = %v, want connection failed", notifier.statusList())
	}

	waitFor(t, time.Second, "reconnect dial", func() bool { return dialer.count() == 2 })
	if got := m.Status().Attempts; got != 2 {
		t.Errorf("Attempts = %d, want 2", got)
	}
}

func TestDialError_ArmsReconnect(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, 20*time.Millisecond)
	dialer.setErr(errRefused)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.State() != StateFailed {
		t.Errorf("State = %q, want %q", m.State(), StateFailed)
	}
	if !m.Status().ReconnectPending {
		t.Error("ReconnectPending = false after dial error")
	}

	dialer.setErr(nil)
	waitFor(t, time.Second, "reconnect dial", func() bool { return dialer.count() == 2 })
}

func TestRepeatedFailures_SingleTimerSlot(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, 80*time.Millisecond)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)

	tr.connectTok.complete(errRefused)
	waitFor(t, time.Second, "first arm", func() bool { return m.Status().ReconnectPending })

	// A second failure before the first timer fires replaces it.
	time.Sleep(20 * time.Millisecond)
	tr.handlers.OnConnectionLost(errors.New("reset by peer"))

	time.Sleep(250 * time.Millisecond)

	// One initial dial plus exactly one reconnect.
	if got := dialer.count(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestStopDuringConnecting_IgnoresLateCallbacks(t *testing.T) {
	m, dialer, notifier, _ := newTestManager(t, 20*time.Millisecond)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)

	m.Stop()

	tr.handlers.OnConnected(false)
	tr.handlers.OnConnectionLost(errRefused)
	tr.connectTok.complete(errRefused)
	tr.handlers.OnMessage("test/voice", []byte("late"))

	time.Sleep(80 * time.Millisecond)

	if m.State() != StateStopped {
		t.Errorf("State = %q, want %q", m.State(), StateStopped)
	}
	if len(tr.subscribeCalls()) != 0 {
		t.Error("stale connect triggered a subscribe")
	}
	if dialer.count() != 1 {
		t.Errorf("dial count = %d, want 1", dialer.count())
	}
	if m.Status().ReconnectPending {
		t.Error("ReconnectPending = true after Stop")
	}
	if len(notifier.messageList()) != 0 {
		t.Errorf("messages = %v, want none", notifier.messageList())
	}
}

func TestStop_CancelsPendingReconnect(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, 30*time.Millisecond)
	dialer.setErr(errRefused)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()

	time.Sleep(90 * time.Millisecond)
	if got := dialer.count(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestStop_Idempotent(t *testing.T) {
	m, dialer, notifier, _ := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	listen(t, m, tr)

	m.Stop()
	m.Stop()

	if d, c := tr.counts(); d != 1 || c != 1 {
		t.Errorf("disconnects/closes = %d/%d, want 1/1", d, c)
	}

	stopped := 0
	for _, s := range notifier.statusList() {
		if s == "stopped" {
			stopped++
		}
	}
	if stopped != 1 {
		t.Errorf("stopped status emitted %d times, want 1", stopped)
	}
}

func TestStart_AfterStop(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	if m.State() != StateConnecting {
		t.Errorf("State = %q, want %q", m.State(), StateConnecting)
	}
	listen(t, m, dialer.at(1))
}

func TestConnectionLost_ArmsFallbackThenReconnectCancels(t *testing.T) {
	m, dialer, notifier, _ := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	listen(t, m, tr)

	tr.handlers.OnConnectionLost(nil)

	snap := m.Status()
	if snap.State != StateDisconnected {
		t.Errorf("State = %q, want %q", snap.State, StateDisconnected)
	}
	if !snap.ReconnectPending {
		t.Error("ReconnectPending = false after connection loss")
	}
	if !containsStatus(notifier.statusList(), "connection lost: unknown cause") {
		t.Errorf("statuses = %v, want connection lost", notifier.statusList())
	}

	// The transport's own reconnect wins and cancels the fallback.
	tr.handlers.OnConnected(true)

	snap = m.Status()
	if snap.ReconnectPending {
		t.Error("ReconnectPending = true after reconnect")
	}
	if snap.State != StateSubscribing {
		t.Errorf("State = %q, want %q", snap.State, StateSubscribing)
	}
	if !containsStatus(notifier.statusList(), "reconnected to") {
		t.Errorf("statuses = %v, want reconnected", notifier.statusList())
	}
	waitFor(t, time.Second, "resubscribe", func() bool { return len(tr.subscribeCalls()) == 2 })
}

func TestReconnect_IgnoredWhileListening(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	listen(t, m, dialer.at(0))

	m.mu.Lock()
	seq := m.reconnectSeq
	m.mu.Unlock()

	m.reconnect(seq)

	if got := dialer.count(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	if m.State() != StateListening {
		t.Errorf("State = %q, want %q", m.State(), StateListening)
	}
}

func TestReconnect_StaleSequenceIgnored(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, time.Second)
	dialer.setErr(errRefused)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	m.mu.Lock()
	stale := m.reconnectSeq - 1
	m.mu.Unlock()

	m.reconnect(stale)
	if got := dialer.count(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestSubscribeFailure_KeepsConnection(t *testing.T) {
	m, dialer, notifier, _ := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	tr.handlers.OnConnected(false)
	waitFor(t, time.Second, "subscribe call", func() bool { return tr.subToken(0) != nil })
	tr.subToken(0).complete(errors.New("not authorized"))

	waitFor(t, time.Second, "subscribe failure status", func() bool {
		return containsStatus(notifier.statusList(), "subscribe failed: not authorized")
	})

	snap := m.Status()
	if snap.State != StateSubscribing {
		t.Errorf("State = %q, want %q", snap.State, StateSubscribing)
	}
	if snap.ReconnectPending {
		t.Error("ReconnectPending = true after subscribe failure")
	}
	if d, _ := tr.counts(); d != 0 {
		t.Errorf("disconnects = %d, want 0", d)
	}
}

func TestMessage_Dispatched(t *testing.T) {
	m, dialer, notifier, speaker := newTestManager(t, time.Second)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	listen(t, m, tr)

	payload := []byte(`{"type":"tts_dynamic","txt":"hello"}`)
	tr.handlers.OnMessage("test/voice", payload)
	// The transport may reuse its buffer.
	copy(payload, "XXXXXXXXXXXXXXXXXXX")

	tr.handlers.OnMessage("test/voice", []byte("plain"))

	waitFor(t, time.Second, "two spoken messages", func() bool { return len(speaker.texts()) == 2 })

	if got := speaker.texts(); !slices.Equal(got, []string{"hello", "plain"}) {
		t.Errorf("spoken = %v, want [hello plain]", got)
	}
	messages := notifier.messageList()
	if len(messages) != 2 || !strings.HasSuffix(messages[0], "hello") || messages[1] != "plain" {
		t.Errorf("messages = %v", messages)
	}
}

// newGatedManager builds a Manager whose speaker holds the dispatch
// goroutine on the first message.
func newGatedManager(t *testing.T, inboxSize int) (*Manager, *fakeDialer, *gatedSpeaker) {
	t.Helper()

	dialer := &fakeDialer{}
	speaker := newGatedSpeaker()

	m, err := New(Options{
		Dial:           dialer.Dial,
		Speaker:        speaker,
		ReconnectDelay: time.Second,
		InboxSize:      inboxSize,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)
	t.Cleanup(func() {
		select {
		case <-speaker.release:
		default:
			close(speaker.release)
		}
	})

	return m, dialer, speaker
}

func TestMessage_QueuedBeforeStopNotSpoken(t *testing.T) {
	m, dialer, speaker := newGatedManager(t, 8)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	listen(t, m, tr)

	tr.handlers.OnMessage("test/voice", []byte("first"))
	<-speaker.entered
	tr.handlers.OnMessage("test/voice", []byte("queued one"))
	tr.handlers.OnMessage("test/voice", []byte("queued two"))

	m.Stop()
	close(speaker.release)

	// A fresh session proves the loop has drained the retired items.
	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	next := dialer.at(1)
	listen(t, m, next)
	next.handlers.OnMessage("test/voice", []byte("after restart"))

	waitFor(t, time.Second, "message after restart", func() bool {
		texts := speaker.texts()
		return len(texts) > 0 && texts[len(texts)-1] == "after restart"
	})

	if got := speaker.texts(); !slices.Equal(got, []string{"first", "after restart"}) {
		t.Errorf("spoken = %v, want [first after restart]", got)
	}
}

func TestMessage_FullInboxDropsWithoutBlocking(t *testing.T) {
	m, dialer, speaker := newGatedManager(t, 1)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	listen(t, m, tr)

	tr.handlers.OnMessage("test/voice", []byte("speaking"))
	<-speaker.entered
	tr.handlers.OnMessage("test/voice", []byte("buffered"))

	delivered := make(chan struct{})
	go func() {
		tr.handlers.OnMessage("test/voice", []byte("overflow"))
		close(delivered)
	}()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("OnMessage blocked on a full inbox")
	}

	if got := m.Status().DroppedMessages; got != 1 {
		t.Errorf("DroppedMessages = %d, want 1", got)
	}

	close(speaker.release)
	waitFor(t, time.Second, "buffered message spoken", func() bool { return len(speaker.texts()) == 2 })
	if got := speaker.texts(); !slices.Equal(got, []string{"speaking", "buffered"}) {
		t.Errorf("spoken = %v, want [speaking buffered]", got)
	}
}

func TestClose_RejectsStart(t *testing.T) {
	m, _, _, _ := newTestManager(t, time.Second)

	m.Close()
	m.Close()

	if err := m.Start(validConfig()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestStatus_Snapshot(t *testing.T) {
	m, dialer, _, _ := newTestManager(t, time.Second)

	cfg := validConfig()
	cfg.Topics = []string{"a", "b"}
	if err := m.Start(cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	listen(t, m, dialer.at(0))

	snap := m.Status()
	if snap.BrokerURL != "tcp://broker.emqx.io:1883" {
		t.Errorf("BrokerURL = %q", snap.BrokerURL)
	}
	if snap.ClientID != "mqttvoice-test" {
		t.Errorf("ClientID = %q", snap.ClientID)
	}
	if !slices.Equal(snap.Topics, []string{"a", "b"}) {
		t.Errorf("Topics = %v", snap.Topics)
	}
	if snap.ConnectedAt.IsZero() {
		t.Error("ConnectedAt is zero while listening")
	}
	if snap.LastStatus != "subscribed to topics: a, b" {
		t.Errorf("LastStatus = %q", snap.LastStatus)
	}

	// Mutating the snapshot does not leak into the manager.
	snap.Topics[0] = "z"
	if m.Status().Topics[0] != "a" {
		t.Error("Status() returned an aliased topic slice")
	}
}

func TestOnStateChange_ReportsTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	dialer := &fakeDialer{}
	m, err := New(Options{
		Dial:           dialer.Dial,
		ReconnectDelay: time.Hour,
		OnStateChange: func(s State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s)
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)

	if err := m.Start(validConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tr := dialer.at(0)
	listen(t, m, tr)
	tr.handlers.OnConnectionLost(errors.New("eof"))
	m.Stop()
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateSubscribing, StateListening, StateDisconnected, StateStopped}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}
