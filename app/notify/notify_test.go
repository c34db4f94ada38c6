package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type senderMock struct {
	dest, text []string
	err        error
}

func (s *senderMock) Send(_ context.Context, destination, text string) error {
	s.dest = append(s.dest, destination)
	s.text = append(s.text, text)
	return s.err
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "success", SeveritySuccess.String())
	assert.Equal(t, "danger", SeverityDanger.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "info", Severity(99).String())

	s, err := ParseSeverity("Warning")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, s)
	_, err = ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestNotification_Payload(t *testing.T) {
	n := Notification{Message: "One Search process is already running", Severity: SeverityWarning}
	assert.Equal(t, []string{"One Search process is already running", "warning"}, n.Payload())
}

func TestRelay_Forward(t *testing.T) {
	sender := &senderMock{}
	r := &Relay{Destination: "https://hooks.example.com/x", Threshold: SeverityDanger, HostName: "desk", Sender: sender}

	require.NoError(t, r.Forward(context.Background(), Notification{Message: "saved", Severity: SeveritySuccess}))
	require.NoError(t, r.Forward(context.Background(), Notification{Message: "busy", Severity: SeverityWarning}))
	assert.Empty(t, sender.text, "below threshold")

	require.NoError(t, r.Forward(context.Background(), Notification{Message: "DB error", Severity: SeverityDanger}))
	assert.Equal(t, []string{"https://hooks.example.com/x"}, sender.dest)
	assert.Equal(t, []string{"offlinebay on desk [danger]: DB error"}, sender.text)

	r.Threshold = SeverityWarning
	require.NoError(t, r.Forward(context.Background(), Notification{Message: "busy", Severity: SeverityWarning}))
	assert.Len(t, sender.text, 2)

	sender.err = errors.New("timeout")
	assert.EqualError(t, r.Forward(context.Background(), Notification{Message: "x", Severity: SeverityDanger}),
		"failed to relay notification: timeout")

	var nilRelay *Relay
	assert.NoError(t, nilRelay.Forward(context.Background(), Notification{Severity: SeverityDanger}))
}

func TestNewWebhookRelay(t *testing.T) {
	received := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		received <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	r := NewWebhookRelay(ts.URL, "desk", time.Second)
	require.NoError(t, r.Forward(context.Background(), Notification{Message: "Failed to save settings", Severity: SeverityDanger}))
	select {
	case body := <-received:
		assert.Contains(t, body, "Failed to save settings")
	case <-time.After(time.Second):
		t.Fatal("webhook not called")
	}
}
