package direct

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	domainDevice "comm-terminal/internal/domain/device"
	"comm-terminal/internal/domain/message"
	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
	appErrors "comm-terminal/pkg/errors"
	"comm-terminal/pkg/geo"
)

type fakeRest struct {
	mu        sync.Mutex
	getBody   []byte
	postBody  map[string]interface{}
	postCount int
}

func (f *fakeRest) Get(_ context.Context, _ string, _ url.Values) ([]byte, error) {
	if f.getBody == nil {
		return []byte(`[]`), nil
	}
	return f.getBody, nil
}

func (f *fakeRest) Post(_ context.Context, _ string, body interface{}) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCount++
	f.postBody = body.(map[string]interface{})

	// Echo back a persisted row.
	row := map[string]interface{}{}
	for k, v := range f.postBody {
		row[k] = v
	}
	row["id"] = uuid.NewString()
	row["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(row)
}

func (f *fakeRest) Patch(_ context.Context, _ string, _ interface{}) ([]byte, error) {
	return []byte(`{}`), nil
}

type fakeDevices struct {
	device *domainDevice.Device
}

func (f *fakeDevices) GetDevice(context.Context, uuid.UUID) (*domainDevice.Device, error) {
	return f.device, nil
}

type fakeLocations struct {
	point  geo.Point
	seenAt time.Time
	err    error
}

func (f *fakeLocations) LastKnownLocation(context.Context, uuid.UUID) (geo.Point, time.Time, error) {
	return f.point, f.seenAt, f.err
}

type fakeCoord struct {
	handlers map[string]realtime.Handler
	stops    []string
}

func newFakeCoord() *fakeCoord {
	return &fakeCoord{handlers: make(map[string]realtime.Handler)}
}

func (f *fakeCoord) Start(key string, h realtime.Handler, _ func()) error {
	f.handlers[key] = h
	return nil
}

func (f *fakeCoord) Stop(key string) {
	delete(f.handlers, key)
	f.stops = append(f.stops, key)
}

func shortRangeDevice() *domainDevice.Device {
	return &domainDevice.Device{
		ID:           uuid.New(),
		Type:         domainDevice.TypeShortRange,
		BatteryLevel: 90,
		TierLevel:    1,
		Active:       true,
	}
}

func newTestService(rest *fakeRest, coord *fakeCoord, devices *fakeDevices, locations *fakeLocations) *Service {
	return NewService(rest, coord, devices, locations, syncer.NewMetricsTracker(), 50, 10*time.Minute)
}

func TestCanCommunicateWithDistanceGate(t *testing.T) {
	svc := newTestService(&fakeRest{}, newFakeCoord(), &fakeDevices{}, &fakeLocations{})
	dev := shortRangeDevice() // effective range 5km

	self := geo.Point{Latitude: 31.23, Longitude: 121.47}
	near := geo.Point{Latitude: 31.24, Longitude: 121.48} // about 1.46km away
	far := geo.Point{Latitude: 31.50, Longitude: 121.90}  // well past 5km

	if ok, reason := svc.CanCommunicateWith(dev, self, near); !ok {
		t.Errorf("in-range peer rejected: %s", reason)
	}
	ok, reason := svc.CanCommunicateWith(dev, self, far)
	if ok {
		t.Fatal("out-of-range peer allowed")
	}
	if !strings.HasPrefix(reason, "out of range:") {
		t.Errorf("reason = %q, want out-of-range wording", reason)
	}
}

func TestCanCommunicateWithDeviceReasons(t *testing.T) {
	svc := newTestService(&fakeRest{}, newFakeCoord(), &fakeDevices{}, &fakeLocations{})
	p := geo.Point{}

	tests := []struct {
		name   string
		device *domainDevice.Device
		reason string
	}{
		{"no device", nil, "no device"},
		{"inactive", &domainDevice.Device{Type: domainDevice.TypeShortRange, BatteryLevel: 50}, "device inactive"},
		{"receive only", &domainDevice.Device{Type: domainDevice.TypeReceiveOnly, BatteryLevel: 50, Active: true}, "device is receive-only"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := svc.CanCommunicateWith(tc.device, p, p)
			if ok || reason != tc.reason {
				t.Errorf("got (%v, %q), want (false, %q)", ok, reason, tc.reason)
			}
		})
	}
}

func TestSendMessageStampsHaversineDistance(t *testing.T) {
	rest := &fakeRest{}
	recipientAt := geo.Point{Latitude: 31.24, Longitude: 121.48}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: shortRangeDevice()},
		&fakeLocations{point: recipientAt, seenAt: time.Now()})

	selfAt := geo.Point{Latitude: 31.23, Longitude: 121.47}
	sent, err := svc.SendMessage(context.Background(), uuid.New(), uuid.New(), "meet me", selfAt)
	if err != nil {
		t.Fatal(err)
	}

	const want = 1.4630
	if sent.DistanceKm == nil {
		t.Fatal("distance not stamped")
	}
	if math.Abs(*sent.DistanceKm-want)/want > 0.001 {
		t.Errorf("distance_km = %v, want %v ±0.1%%", *sent.DistanceKm, want)
	}
	// The stamp persists the snapshot, not a live value.
	if rest.postBody["distance_km"].(float64) != *sent.DistanceKm {
		t.Error("persisted distance differs from returned snapshot")
	}
}

func TestSendMessageReceiveOnlyRejectedNoNetwork(t *testing.T) {
	rest := &fakeRest{}
	receiveOnly := &domainDevice.Device{Type: domainDevice.TypeReceiveOnly, BatteryLevel: 90, Active: true}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: receiveOnly},
		&fakeLocations{point: geo.Point{}, seenAt: time.Now()})

	_, err := svc.SendMessage(context.Background(), uuid.New(), uuid.New(), "hello?", geo.Point{})
	if appErrors.CodeOf(err) != appErrors.CodeAuthorization {
		t.Fatalf("error code = %q, want authorization", appErrors.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "receive-only") {
		t.Errorf("reason = %v, want receive-only", err)
	}
	if rest.postCount != 0 {
		t.Error("rejected send reached the network")
	}
}

func TestSendMessageOutOfRangeRejectedNoNetwork(t *testing.T) {
	rest := &fakeRest{}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: shortRangeDevice()},
		&fakeLocations{point: geo.Point{Latitude: 32.0, Longitude: 122.0}, seenAt: time.Now()})

	_, err := svc.SendMessage(context.Background(), uuid.New(), uuid.New(), "too far",
		geo.Point{Latitude: 31.23, Longitude: 121.47})
	if appErrors.CodeOf(err) != appErrors.CodeAuthorization {
		t.Fatalf("error code = %q, want authorization", appErrors.CodeOf(err))
	}
	if rest.postCount != 0 {
		t.Error("rejected send reached the network")
	}
}

func TestSendMessageRejectsEmptyAndSelf(t *testing.T) {
	rest := &fakeRest{}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: shortRangeDevice()},
		&fakeLocations{seenAt: time.Now()})

	self := uuid.New()
	if _, err := svc.SendMessage(context.Background(), self, uuid.New(), "   ", geo.Point{}); appErrors.CodeOf(err) != appErrors.CodeValidation {
		t.Error("whitespace content not rejected as validation error")
	}
	if _, err := svc.SendMessage(context.Background(), self, self, "hi", geo.Point{}); appErrors.CodeOf(err) != appErrors.CodeValidation {
		t.Error("self-send not rejected as validation error")
	}
	if rest.postCount != 0 {
		t.Error("validation failure reached the network")
	}
}

func TestLoadMessagesSupersedesPriorConversation(t *testing.T) {
	coord := newFakeCoord()
	svc := newTestService(&fakeRest{}, coord, &fakeDevices{}, &fakeLocations{})

	self := uuid.New()
	first := uuid.New()
	second := uuid.New()

	if _, err := svc.LoadMessages(context.Background(), self, first); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.LoadMessages(context.Background(), self, second); err != nil {
		t.Fatal(err)
	}

	firstKey := syncer.KeyConversation(self, first)
	if len(coord.stops) != 1 || coord.stops[0] != firstKey {
		t.Errorf("stops = %v, want prior conversation torn down", coord.stops)
	}
	if _, active := coord.handlers[syncer.KeyConversation(self, second)]; !active {
		t.Error("new conversation stream not active")
	}
}

func TestConversationRealtimeDedup(t *testing.T) {
	coord := newFakeCoord()
	svc := newTestService(&fakeRest{}, coord, &fakeDevices{}, &fakeLocations{})

	self := uuid.New()
	peer := uuid.New()
	if _, err := svc.LoadMessages(context.Background(), self, peer); err != nil {
		t.Fatal(err)
	}

	dm := message.DirectMessage{
		ID:          uuid.New(),
		SenderID:    peer,
		RecipientID: self,
		Content:     "copy that",
		CreatedAt:   message.Time{Time: time.Now().UTC()},
	}
	record, _ := json.Marshal(dm)

	key := syncer.KeyConversation(self, peer)
	coord.handlers[key](realtime.InsertEvent{Record: record})
	coord.handlers[key](realtime.InsertEvent{Record: record})

	if got := len(svc.Messages()); got != 1 {
		t.Errorf("cache holds %d, want 1 after duplicate delivery", got)
	}
}

func TestOnMessagesSurvivesConversationSwitch(t *testing.T) {
	coord := newFakeCoord()
	svc := newTestService(&fakeRest{}, coord, &fakeDevices{}, &fakeLocations{})

	var mu sync.Mutex
	var notified int
	svc.OnMessages(func([]message.DirectMessage) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	self := uuid.New()
	first := uuid.New()
	second := uuid.New()

	push := func(peer uuid.UUID, content string) {
		dm := message.DirectMessage{
			ID:          uuid.New(),
			SenderID:    peer,
			RecipientID: self,
			Content:     content,
			CreatedAt:   message.Time{Time: time.Now().UTC()},
		}
		record, _ := json.Marshal(dm)
		coord.handlers[syncer.KeyConversation(self, peer)](realtime.InsertEvent{Record: record})
	}

	if _, err := svc.LoadMessages(context.Background(), self, first); err != nil {
		t.Fatal(err)
	}
	push(first, "first conversation")

	mu.Lock()
	afterFirst := notified
	mu.Unlock()
	if afterFirst == 0 {
		t.Fatal("listener not notified on first conversation")
	}

	// Switching conversations swaps in a fresh stream; the listener must
	// follow it without re-registering.
	if _, err := svc.LoadMessages(context.Background(), self, second); err != nil {
		t.Fatal(err)
	}
	push(second, "second conversation")

	mu.Lock()
	afterSecond := notified
	mu.Unlock()
	if afterSecond <= afterFirst {
		t.Error("listener orphaned after conversation switch")
	}
}

func TestStopSubscriptionSafeWhenIdle(t *testing.T) {
	coord := newFakeCoord()
	svc := newTestService(&fakeRest{}, coord, &fakeDevices{}, &fakeLocations{})
	svc.StopSubscription()
	if len(coord.stops) != 0 {
		t.Error("idle stop reached the coordinator")
	}
}

func TestCheckReachabilityProbe(t *testing.T) {
	recipientAt := geo.Point{Latitude: 31.24, Longitude: 121.48}
	svc := newTestService(&fakeRest{}, newFakeCoord(), &fakeDevices{device: shortRangeDevice()},
		&fakeLocations{point: recipientAt, seenAt: time.Now()})

	selfAt := geo.Point{Latitude: 31.23, Longitude: 121.47}
	result, err := svc.CheckReachability(context.Background(), uuid.New(), uuid.New(), selfAt)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed || result.Reason != "" {
		t.Fatalf("in-range probe denied: %+v", result)
	}
	if result.RangeKm != 5 {
		t.Errorf("range_km = %v, want 5", result.RangeKm)
	}
	const want = 1.4630
	if math.Abs(result.DistanceKm-want)/want > 0.001 {
		t.Errorf("distance_km = %v, want %v ±0.1%%", result.DistanceKm, want)
	}

	if _, err := svc.CheckReachability(context.Background(), uuid.Nil, uuid.Nil, selfAt); err == nil {
		t.Error("self probe accepted")
	}
}
