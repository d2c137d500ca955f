package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
)

type fakeNATS struct {
	fails    int
	subjects []string
	data     [][]byte
	drained  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	if f.fails > 0 {
		f.fails--
		return errors.New("nats: connection closed")
	}
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSubscriberPublishesRecord(t *testing.T) {
	conn := &fakeNATS{fails: 2}
	sub := newNATSSubscriber(conn, "vigil.events.", logging.NewNop())
	var slept []time.Duration
	sub.sleep = func(d time.Duration) { slept = append(slept, d) }

	ev := testEvent(t, "person", "package")
	require.NoError(t, sub.Publish(context.Background(), ev))
	assert.Equal(t, []string{"vigil.events.porch"}, conn.subjects)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept)

	var rec event.Record
	require.NoError(t, json.Unmarshal(conn.data[0], &rec))
	assert.Equal(t, ev.ID(), rec.ID)
	assert.Equal(t, []string{"package", "person"}, rec.Labels)

	require.NoError(t, sub.Close())
	assert.True(t, conn.drained)
}

func TestNATSSubscriberGivesUp(t *testing.T) {
	conn := &fakeNATS{fails: 10}
	sub := newNATSSubscriber(conn, "vigil.events", logging.NewNop())
	sub.sleep = func(time.Duration) {}
	err := sub.Publish(context.Background(), testEvent(t, "car"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, "vigil.events.front_door", sub.Subject("front.door"))
}

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTT struct {
	mu           sync.Mutex
	token        *fakeToken
	topics       []string
	qos          []byte
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.qos = append(f.qos, qos)
	return f.token
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestMQTTSubscriber(t *testing.T) {
	tests := []struct {
		name    string
		token   *fakeToken
		wantErr string
	}{
		{name: "acked", token: &fakeToken{done: true}},
		{name: "broker error", token: &fakeToken{done: true, err: errors.New("not authorized")}, wantErr: "not authorized"},
		{name: "timeout", token: &fakeToken{}, wantErr: "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeMQTT{token: tt.token}
			sub := newMQTTSubscriber(client, "/vigil/", 5)
			err := sub.Publish(context.Background(), testEvent(t, "person"))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, []string{"vigil/porch/events"}, client.topics)
			assert.Equal(t, []byte{2}, client.qos, "qos is clamped to 2")
			require.NoError(t, sub.Close())
			assert.True(t, client.disconnected)
		})
	}
}

func TestDeduperWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduper(8, time.Minute, func() time.Time { return now })
	assert.False(t, d.IsDuplicate("porch|person"))
	assert.True(t, d.IsDuplicate("porch|person"))
	assert.False(t, d.IsDuplicate("porch|car"))
	now = now.Add(61 * time.Second)
	assert.False(t, d.IsDuplicate("porch|person"))

	off := NewDeduper(8, 0, nil)
	assert.False(t, off.IsDuplicate("k"))
	assert.False(t, off.IsDuplicate("k"))
}

func TestNtfySubscriberPostsAndDeduplicates(t *testing.T) {
	type request struct {
		title, tags, body, agent string
	}
	var (
		mu   sync.Mutex
		reqs []request
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, request{r.Header.Get("Title"), r.Header.Get("Tags"), string(body), r.Header.Get("User-Agent")})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.Notify{NtfyTopic: server.URL + "/vigil", RequestTimeout: 5, DedupWindowSeconds: 300}
	sub := NewNtfySubscriber(cfg, WithNtfyClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, sub.Publish(ctx, testEvent(t, "person", "package")))
	require.NoError(t, sub.Publish(ctx, testEvent(t, "package", "person")))
	require.NoError(t, sub.Publish(ctx, testEvent(t, "car")))
	now = now.Add(6 * time.Minute)
	require.NoError(t, sub.Publish(ctx, testEvent(t, "person", "package")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reqs, 3)
	assert.Equal(t, "porch: package, person", reqs[0].title)
	assert.Equal(t, "someone at the door", reqs[0].body)
	assert.Equal(t, ntfyMessageTags, reqs[0].tags)
	assert.Equal(t, userAgent, reqs[0].agent)
	assert.Equal(t, "porch: car", reqs[1].title)
}

func TestNtfySubscriberReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is read-only", http.StatusForbidden)
	}))
	defer server.Close()

	sub := NewNtfySubscriber(config.Notify{NtfyTopic: server.URL + "/vigil", RequestTimeout: 5})
	err := sub.Publish(context.Background(), testEvent(t, "person"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ntfy returned 403")
}
