package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	domainDevice "comm-terminal/internal/domain/device"
	"comm-terminal/internal/domain/message"
	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
	appErrors "comm-terminal/pkg/errors"
)

type fakeRest struct {
	mu       sync.Mutex
	getBody  []byte
	getErr   error
	posts    []string
	postErr  error
}

func (f *fakeRest) Get(_ context.Context, path string, _ url.Values) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getBody, nil
}

func (f *fakeRest) Post(_ context.Context, path string, body interface{}) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, path)
	if f.postErr != nil {
		return nil, f.postErr
	}
	return []byte(`{}`), nil
}

func (f *fakeRest) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeDevices struct {
	device *domainDevice.Device
	err    error
}

func (f *fakeDevices) GetDevice(context.Context, uuid.UUID) (*domainDevice.Device, error) {
	return f.device, f.err
}

type fakeCoord struct {
	handlers map[string]realtime.Handler
	resyncs  map[string]func()
	stops    []string
}

func newFakeCoord() *fakeCoord {
	return &fakeCoord{
		handlers: make(map[string]realtime.Handler),
		resyncs:  make(map[string]func()),
	}
}

func (f *fakeCoord) Start(key string, h realtime.Handler, resync func()) error {
	f.handlers[key] = h
	f.resyncs[key] = resync
	return nil
}

func (f *fakeCoord) Stop(key string) {
	delete(f.handlers, key)
	f.stops = append(f.stops, key)
}

func sendableDevice() *domainDevice.Device {
	return &domainDevice.Device{
		ID:           uuid.New(),
		Type:         domainDevice.TypeMidRange,
		BatteryLevel: 80,
		TierLevel:    1,
		Active:       true,
	}
}

func historyJSON(n int, base time.Time) []byte {
	// Descending, the way the REST path returns it.
	rows := make([]message.Message, 0, n)
	for i := n - 1; i >= 0; i-- {
		rows = append(rows, message.Message{
			ID:        uuid.New(),
			SenderID:  uuid.New(),
			Content:   fmt.Sprintf("msg-%d", i),
			Type:      message.TypeBroadcast,
			CreatedAt: message.Time{Time: base.Add(time.Duration(i) * time.Second)},
		})
	}
	data, _ := json.Marshal(rows)
	return data
}

func newTestService(rest *fakeRest, coord *fakeCoord, devices *fakeDevices) *Service {
	return NewService(rest, coord, devices, syncer.NewMetricsTracker(), 50)
}

func TestStartLoadsHistoryAscending(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rest := &fakeRest{getBody: historyJSON(5, base)}
	coord := newFakeCoord()
	svc := newTestService(rest, coord, &fakeDevices{})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if svc.State() != StateReady {
		t.Errorf("state = %q, want %q", svc.State(), StateReady)
	}

	msgs := svc.Messages()
	if len(msgs) != 5 {
		t.Fatalf("loaded %d messages, want 5", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp().Before(msgs[i-1].Timestamp()) {
			t.Fatal("history not in ascending order")
		}
	}
	if _, ok := coord.handlers[syncer.KeyBroadcast]; !ok {
		t.Error("realtime subscription not opened")
	}
}

func TestStartFailureRecordsError(t *testing.T) {
	rest := &fakeRest{getErr: appErrors.NewTransportError("backend down", nil)}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{})

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if svc.State() != StateError {
		t.Errorf("state = %q, want %q", svc.State(), StateError)
	}
	if svc.LastError() == "" {
		t.Error("error not recorded")
	}
}

func TestSendRejectsEmptyContentBeforeNetwork(t *testing.T) {
	rest := &fakeRest{}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: sendableDevice()})

	for _, content := range []string{"", "   ", "\n\t"} {
		err := svc.Send(context.Background(), uuid.New(), content)
		if appErrors.CodeOf(err) != appErrors.CodeValidation {
			t.Errorf("Send(%q) error code = %q, want validation", content, appErrors.CodeOf(err))
		}
	}
	if rest.postCount() != 0 {
		t.Errorf("validation failure reached the network: %d posts", rest.postCount())
	}
}

func TestSendRejectsReceiveOnlyDeviceBeforeNetwork(t *testing.T) {
	rest := &fakeRest{}
	receiveOnly := sendableDevice()
	receiveOnly.Type = domainDevice.TypeReceiveOnly
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: receiveOnly})

	err := svc.Send(context.Background(), uuid.New(), "hello out there")
	if appErrors.CodeOf(err) != appErrors.CodeAuthorization {
		t.Fatalf("error code = %q, want authorization", appErrors.CodeOf(err))
	}
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) || appErr.Message != "device is receive-only" {
		t.Errorf("reason = %v, want receive-only", err)
	}
	if rest.postCount() != 0 {
		t.Error("rejected send reached the network")
	}
}

func TestSendPostsViaRest(t *testing.T) {
	rest := &fakeRest{}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: sendableDevice()})

	if err := svc.Send(context.Background(), uuid.New(), "anyone copy?"); err != nil {
		t.Fatal(err)
	}
	if rest.postCount() != 1 || rest.posts[0] != "messages" {
		t.Errorf("posts = %v, want one to messages", rest.posts)
	}
}

func TestRealtimeEventsDeduplicated(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rest := &fakeRest{getBody: historyJSON(3, base)}
	coord := newFakeCoord()
	svc := newTestService(rest, coord, &fakeDevices{})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	existing := svc.Messages()[0]
	dupRecord, _ := json.Marshal(existing)
	fresh := message.Message{
		ID:        uuid.New(),
		SenderID:  uuid.New(),
		Content:   "new arrival",
		Type:      message.TypeBroadcast,
		CreatedAt: message.Time{Time: base.Add(time.Hour)},
	}
	freshRecord, _ := json.Marshal(fresh)

	handler := coord.handlers[syncer.KeyBroadcast]
	handler(realtime.InsertEvent{StreamKey: syncer.KeyBroadcast, Record: dupRecord})
	handler(realtime.InsertEvent{StreamKey: syncer.KeyBroadcast, Record: freshRecord})

	if got := len(svc.Messages()); got != 4 {
		t.Errorf("cache holds %d, want 4 (3 history + 1 new, dup dropped)", got)
	}
}

func TestRealtimeDropsUndecodableRecord(t *testing.T) {
	rest := &fakeRest{getBody: []byte(`[]`)}
	coord := newFakeCoord()
	metrics := syncer.NewMetricsTracker()
	svc := NewService(rest, coord, &fakeDevices{}, metrics, 50)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	bad := []byte(`{"id":"` + uuid.NewString() + `","created_at":"garbage"}`)
	coord.handlers[syncer.KeyBroadcast](realtime.InsertEvent{Record: bad})

	if len(svc.Messages()) != 0 {
		t.Error("undecodable record was cached")
	}
	if metrics.Snapshot().RecordsDropped != 1 {
		t.Error("dropped record not counted")
	}
}

func TestSendFailureRecoversToReady(t *testing.T) {
	rest := &fakeRest{getBody: []byte(`[]`)}
	svc := newTestService(rest, newFakeCoord(), &fakeDevices{device: sendableDevice()})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rest.postErr = appErrors.NewTransportError("backend down", nil)
	if err := svc.Send(context.Background(), uuid.New(), "anyone copy?"); err == nil {
		t.Fatal("expected send error")
	}
	if svc.LastError() == "" {
		t.Error("send failure not recorded")
	}
	// The tail is still attached: a failed post must not leave the service
	// stuck in Error until unrelated inbound traffic flips it back.
	if svc.State() != StateReady {
		t.Errorf("state = %q, want %q", svc.State(), StateReady)
	}
}

func TestResyncFailureRecoversToReady(t *testing.T) {
	rest := &fakeRest{getBody: []byte(`[]`)}
	coord := newFakeCoord()
	svc := newTestService(rest, coord, &fakeDevices{})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rest.getErr = appErrors.NewTransportError("backend down", nil)
	coord.resyncs[syncer.KeyBroadcast]()

	if svc.LastError() == "" {
		t.Error("resync failure not recorded")
	}
	if svc.State() != StateReady {
		t.Errorf("state = %q, want %q", svc.State(), StateReady)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rest := &fakeRest{getBody: []byte(`[]`)}
	coord := newFakeCoord()
	svc := newTestService(rest, coord, &fakeDevices{})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc.Stop()
	svc.Stop()

	if len(coord.stops) != 1 {
		t.Errorf("coordinator stopped %d times, want 1", len(coord.stops))
	}
	if svc.State() != StateIdle {
		t.Errorf("state = %q, want idle", svc.State())
	}
}
