package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseWireTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 utc", "2026-03-01T12:00:00Z", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"fractional seconds", "2026-03-01T12:00:00.123456Z", time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)},
		{"numeric offset", "2026-03-01T12:00:00+08:00", time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)},
		{"offset without colon", "2026-03-01T12:00:00+0800", time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)},
		{"no zone means utc", "2026-03-01T12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"space separator", "2026-03-01 12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseWireTime(tc.input)
			if err != nil {
				t.Fatalf("ParseWireTime(%q): %v", tc.input, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ParseWireTime(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseWireTimeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "yesterday", "2026-13-45T99:00:00Z", "1700000000"} {
		if _, err := ParseWireTime(input); err == nil {
			t.Errorf("ParseWireTime(%q) succeeded, want error", input)
		}
	}
}

// A record with an unparseable timestamp must be dropped, never defaulted to
// the current time.
func TestDecodeRecordsDropsBadTimestamps(t *testing.T) {
	good := `{"id":"` + uuid.NewString() + `","sender_id":"` + uuid.NewString() + `","content":"hello","message_type":"broadcast","created_at":"2026-03-01T12:00:00Z"}`
	bad := `{"id":"` + uuid.NewString() + `","sender_id":"` + uuid.NewString() + `","content":"lost","message_type":"broadcast","created_at":"not-a-time"}`

	raws, err := SplitRecords([]byte("[" + good + "," + bad + "]"))
	if err != nil {
		t.Fatal(err)
	}

	msgs, dropped := DecodeRecords[Message](raws)
	if len(msgs) != 1 || dropped != 1 {
		t.Fatalf("DecodeRecords = %d messages, %d dropped; want 1, 1", len(msgs), dropped)
	}
	if msgs[0].Content != "hello" {
		t.Errorf("kept the wrong record: %+v", msgs[0])
	}
}

func TestConversationKeyUnordered(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	if ConversationKey(a, b) != ConversationKey(b, a) {
		t.Error("conversation key must not depend on participant order")
	}
	if ConversationKey(a, b) == ConversationKey(a, a) {
		t.Error("distinct pairs must have distinct keys")
	}
}

func TestDisplaySender(t *testing.T) {
	m := Message{Type: TypeSystem, SenderDisplayName: "someone"}
	if m.DisplaySender() != SystemSenderName {
		t.Errorf("system message sender = %q, want %q", m.DisplaySender(), SystemSenderName)
	}
	m.Type = TypeBroadcast
	if m.DisplaySender() != "someone" {
		t.Errorf("broadcast sender = %q, want %q", m.DisplaySender(), "someone")
	}
}

func TestChannelPostableBy(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	official := Channel{Type: ChannelOfficial, OwnerID: &owner}
	if official.PostableBy(other) {
		t.Error("official channel must reject non-owner posts")
	}
	if !official.PostableBy(owner) {
		t.Error("official channel owner may post")
	}
	if (Channel{Type: ChannelPublic}).PostableBy(other) != true {
		t.Error("public channel must accept posts")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	orig := Time{time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var back Time
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(orig.Time) {
		t.Errorf("round trip changed time: %v -> %v", orig.Time, back.Time)
	}
}
