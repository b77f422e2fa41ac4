package stream

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karelxkk/svx-dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEFramer_Open(t *testing.T) {
	var buf bytes.Buffer
	f := NewSSEFramer(&buf)

	require.NoError(t, f.Open(5*time.Second))
	assert.Equal(t, "retry: 5000\n\n: hello\n\n", buf.String())
}

func TestSSEFramer_OpenWithoutRetry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSSEFramer(&buf).Open(0))
	assert.Equal(t, ": hello\n\n", buf.String())
}

func TestSSEFramer_WriteEvent(t *testing.T) {
	tests := []struct {
		name  string
		event domain.Event
		want  string
	}{
		{
			name:  "single line",
			event: domain.Event{Type: domain.EventStatusDelta, Payload: "A;1;1;0;9;200;0;0;0"},
			want:  "event: status_csv_add\ndata: A;1;1;0;9;200;0;0;0\n\n",
		},
		{
			name:  "multi line keeps order",
			event: domain.Event{Type: domain.EventStatusFull, Payload: "link;src\r\nA;x\nB;y"},
			want:  "event: status_csv\ndata: link;src\ndata: A;x\ndata: B;y\n\n",
		},
		{
			name:  "empty payload",
			event: domain.Event{Type: domain.EventHistory, Payload: ""},
			want:  "event: history\ndata: \n\n",
		},
		{
			name:  "newline in type is flattened",
			event: domain.Event{Type: "a\nb", Payload: "x"},
			want:  "event: a b\ndata: x\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewSSEFramer(&buf).WriteEvent(tt.event))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSSEFramer_HeartbeatFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	f := NewSSEFramer(rec)

	require.NoError(t, f.Heartbeat())
	assert.Equal(t, ": hb\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
	assert.Equal(t, "sse", f.Transport())
}
