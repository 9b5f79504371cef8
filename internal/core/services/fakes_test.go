package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/mock"
)

type emitted struct {
	event string
	args  []any
}

// fakeTransport dispatches synchronously on the calling goroutine.
type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]ports.EventHandler
	emits    []emitted
	emitErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]map[int]ports.EventHandler{}}
}

func (t *fakeTransport) Emit(_ context.Context, event string, args ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.emitErr != nil {
		return t.emitErr
	}
	t.emits = append(t.emits, emitted{event: event, args: args})
	return nil
}

func (t *fakeTransport) On(event string, handler ports.EventHandler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	if t.handlers[event] == nil {
		t.handlers[event] = map[int]ports.EventHandler{}
	}
	t.handlers[event][id] = handler
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers[event], id)
	}
}

func (t *fakeTransport) dispatch(event string, args ...any) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		raw = append(raw, b)
	}
	t.mu.Lock()
	hs := make([]ports.EventHandler, 0, len(t.handlers[event]))
	for _, h := range t.handlers[event] {
		hs = append(hs, h)
	}
	t.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (t *fakeTransport) handlerCount(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers[event])
}

func (t *fakeTransport) emitted(event string) []emitted {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []emitted
	for _, e := range t.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (t *fakeTransport) lastEmit() emitted {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.emits) == 0 {
		return emitted{}
	}
	return t.emits[len(t.emits)-1]
}

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    domain.TrackKind
	enabled bool
	stops   int
}

func newFakeTrack(id string, kind domain.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops > 0
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeDevices struct {
	mu     sync.Mutex
	calls  int
	err    error
	tracks []*fakeTrack
}

func (d *fakeDevices) GetUserMedia(context.Context, domain.MediaConstraints) (*domain.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	d.tracks = []*fakeTrack{newFakeTrack("mic", domain.TrackAudio), newFakeTrack("cam", domain.TrackVideo)}
	stream := &domain.MediaStream{ID: "local"}
	for _, t := range d.tracks {
		stream.Tracks = append(stream.Tracks, t)
	}
	return stream, nil
}

type fakePeerConnection struct {
	mu           sync.Mutex
	state        webrtc.SignalingState
	tracks       []domain.MediaTrack
	offers       int
	answers      int
	remoteSets   int
	remote       []webrtc.SessionDescription
	local        []webrtc.SessionDescription
	candidates   []webrtc.ICECandidateInit
	candidateErr error
	closes       int
	onCandidate  func(webrtc.ICECandidateInit)
	onTrack      func(ports.RemoteTrack)
	onState      func(webrtc.PeerConnectionState)
}

func newFakePeerConnection() *fakePeerConnection {
	return &fakePeerConnection{state: webrtc.SignalingStateStable}
}

func (p *fakePeerConnection) AddTrack(track domain.MediaTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeerConnection) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *fakePeerConnection) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *fakePeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, desc)
	if desc.Type == webrtc.SDPTypeOffer {
		p.state = webrtc.SignalingStateHaveLocalOffer
	} else {
		p.state = webrtc.SignalingStateStable
	}
	return nil
}

func (p *fakePeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteSets++
	p.remote = append(p.remote, desc)
	if desc.Type == webrtc.SDPTypeOffer {
		p.state = webrtc.SignalingStateHaveRemoteOffer
	} else {
		p.state = webrtc.SignalingStateStable
	}
	return nil
}

func (p *fakePeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, candidate)
	return p.candidateErr
}

func (p *fakePeerConnection) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { p.onCandidate = fn }
func (p *fakePeerConnection) OnTrack(fn func(ports.RemoteTrack))              { p.onTrack = fn }

func (p *fakePeerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.onState = fn
}

func (p *fakePeerConnection) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

type fakeFactory struct {
	pcs []*fakePeerConnection
	err error
}

func (f *fakeFactory) NewPeerConnection() (ports.PeerConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	pc := newFakePeerConnection()
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) last() *fakePeerConnection {
	return f.pcs[len(f.pcs)-1]
}

type fakeRemoteTrack struct {
	kind domain.TrackKind
}

func (t fakeRemoteTrack) ID() string             { return "remote-" + string(t.kind) }
func (t fakeRemoteTrack) StreamID() string       { return "remote" }
func (t fakeRemoteTrack) Kind() domain.TrackKind { return t.kind }

type fakeViews struct {
	mu           sync.Mutex
	local        *domain.MediaStream
	remote       []ports.RemoteTrack
	localClears  int
	remoteClears int
}

func (v *fakeViews) ShowLocal(stream *domain.MediaStream) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.local = stream
}

func (v *fakeViews) ClearLocal() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.local = nil
	v.localClears++
}

func (v *fakeViews) AttachRemote(track ports.RemoteTrack) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.remote = append(v.remote, track)
}

func (v *fakeViews) ClearRemote() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.remote = nil
	v.remoteClears++
}

type fakeFiles struct {
	err  error
	puts []string
}

func (f *fakeFiles) Put(_ context.Context, name, contentType string, size int64, body io.Reader) (ports.StoredFile, error) {
	if f.err != nil {
		return ports.StoredFile{}, f.err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return ports.StoredFile{}, err
	}
	f.puts = append(f.puts, name)
	return ports.StoredFile{Name: name, Size: size, Type: contentType, URL: "blob:local/" + name}, nil
}

func (f *fakeFiles) Release(context.Context, string) error { return nil }

type recordingNavigator struct {
	mu     sync.Mutex
	routes []domain.Route
}

func (n *recordingNavigator) Navigate(route domain.Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

type recordingNotifier struct {
	mu        sync.Mutex
	errors    []string
	successes []string
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) StartMeeting(ctx context.Context, roomID domain.RoomID) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *mockBackend) AddFinalNote(ctx context.Context, roomID domain.RoomID, note domain.FinalNote) error {
	return m.Called(ctx, roomID, note).Error(0)
}

func (m *mockBackend) AddFeedback(ctx context.Context, roomID domain.RoomID, feedback domain.Feedback) error {
	return m.Called(ctx, roomID, feedback).Error(0)
}

func (m *mockBackend) AddBookingRule(ctx context.Context, rule domain.BookingRuleRequest) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *mockBackend) ListBookingRules(ctx context.Context, status domain.RuleStatus) ([]domain.BookingRule, error) {
	args := m.Called(ctx, status)
	rules, _ := args.Get(0).([]domain.BookingRule)
	return rules, args.Error(1)
}

func (m *mockBackend) ToggleRuleStatus(ctx context.Context, ruleID string) (domain.BookingRule, error) {
	args := m.Called(ctx, ruleID)
	return args.Get(0).(domain.BookingRule), args.Error(1)
}

func (m *mockBackend) CreatePaymentOrder(ctx context.Context, appointmentID string, amount int64) (domain.PaymentOrder, error) {
	args := m.Called(ctx, appointmentID, amount)
	return args.Get(0).(domain.PaymentOrder), args.Error(1)
}

func (m *mockBackend) VerifyPayment(ctx context.Context, result domain.PaymentResult) (domain.PaymentVerification, error) {
	args := m.Called(ctx, result)
	return args.Get(0).(domain.PaymentVerification), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Open(ctx context.Context, options domain.CheckoutOptions) (domain.PaymentResult, error) {
	args := m.Called(ctx, options)
	return args.Get(0).(domain.PaymentResult), args.Error(1)
}

var errBoom = errors.New("boom")
