package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeTaskRequiresCoreFields(t *testing.T) {
	_, err := decodeTask(map[string]interface{}{"task_id": "t1"})
	require.Error(t, err)
}

func TestDecodeTaskPreservesUnknownMetadata(t *testing.T) {
	task, err := decodeTask(map[string]interface{}{
		"task_id":     "t1",
		"video_id":    "v1",
		"source_path": "raw/v1",
		"attempt":     float64(2),
		"priority":    "high",
	})
	require.NoError(t, err)
	require.Equal(t, "t1", task.TaskID)
	require.Equal(t, "v1", task.VideoID)
	require.Equal(t, "raw/v1", task.SourcePath)
	require.Equal(t, 2, task.Attempt)
	require.Equal(t, "high", task.Metadata["priority"])
}

func TestDecodeTaskAttemptFromJSONNumber(t *testing.T) {
	raw, err := unmarshalPayload([]byte(`{"task_id":"t1","video_id":"v1","source_path":"raw/v1","attempt":3}`))
	require.NoError(t, err)

	task, err := decodeTask(raw)
	require.NoError(t, err)
	require.Equal(t, 3, task.Attempt)
}

func TestMarshalUnmarshalPayloadRoundTrip(t *testing.T) {
	payload := map[string]interface{}{
		"task_id":     "t1",
		"video_id":    "v1",
		"source_path": "raw/v1",
		"attempt":     1,
	}
	body, err := marshalPayload(payload)
	require.NoError(t, err)

	raw, err := unmarshalPayload(body)
	require.NoError(t, err)

	task, err := decodeTask(raw)
	require.NoError(t, err)
	require.Equal(t, "t1", task.TaskID)
}

func TestRawPayloadFromTaskRoundTrips(t *testing.T) {
	task := Task{
		TaskID:     "t1",
		VideoID:    "v1",
		SourcePath: "raw/v1",
		Attempt:    1,
		Metadata:   map[string]string{"priority": "high"},
	}
	raw := rawPayloadFromTask(task, map[string]interface{}{"error": "boom"})
	require.Equal(t, "t1", raw["task_id"])
	require.Equal(t, "boom", raw["error"])
	require.Equal(t, "high", raw["priority"])
}
