package protocol

import (
	"testing"

	"school-collab/internal/domain"
	collabErrors "school-collab/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEditOperationFrame(t *testing.T) {
	frame := []byte(`{"type":"edit_operation","userId":"b","timestamp":90,
		"operation":{"id":"op1","type":"update","entityType":"course","entityId":"course-7","userId":"b","timestamp":90,"content":{"title":"Algebra"}}}`)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeEditOperation, ev.Type)
	require.NotNil(t, ev.Operation)
	assert.Equal(t, "course-7", ev.Operation.EntityID)
	assert.Equal(t, int64(90), ev.Operation.Timestamp)
	assert.JSONEq(t, `{"title":"Algebra"}`, string(ev.Operation.Content))
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{`{"type":`, `{}`, `[1,2]`, `{"type":""}`} {
		_, err := Decode([]byte(frame))
		assert.ErrorIs(t, err, collabErrors.ErrDecode, frame)
	}
}

func TestEncodeOmitsEmptyMembers(t *testing.T) {
	data, err := Encode(RealtimeEvent{Type: TypePing, Timestamp: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","timestamp":42}`, string(data))
}

func TestSystemAlertPayload(t *testing.T) {
	ev, err := NewSystemAlert(domain.SystemAlert{Severity: domain.NotificationWarning, Title: "Maintenance", Message: "at 22:00"})
	require.NoError(t, err)

	data, err := Encode(ev)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	var alert domain.SystemAlert
	require.NoError(t, decoded.DecodePayload(&alert))
	assert.Equal(t, "Maintenance", alert.Title)
	assert.Equal(t, PriorityHigh, decoded.Priority)
}

func TestDecodePayloadEmpty(t *testing.T) {
	var v map[string]any
	assert.ErrorIs(t, RealtimeEvent{Type: TypeDataSync}.DecodePayload(&v), collabErrors.ErrDecode)
}

func TestNotificationCarriesTargets(t *testing.T) {
	ev := NewNotification("a", domain.NotificationMessage{Type: domain.NotificationError, Title: "x", TargetUsers: []string{"b"}})

	assert.Equal(t, []string{"b"}, ev.TargetUsers)
	assert.Equal(t, PriorityHigh, ev.Priority)
	assert.Equal(t, "a", ev.UserID)
}
