package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var reservedKeys = map[string]bool{
	"task_id":     true,
	"video_id":    true,
	"source_path": true,
	"attempt":     true,
	errorFieldKey: true,
}

// decodeTask decodes a raw flat string-keyed payload into a Task, treating
// task_id, video_id, and source_path as required. Other string-valued keys,
// apart from attempt and the error key a retry adds, become Metadata;
// non-string values stay only in the raw payload.
func decodeTask(raw map[string]interface{}) (Task, error) {
	taskID, _ := raw["task_id"].(string)
	videoID, _ := raw["video_id"].(string)
	sourcePath, _ := raw["source_path"].(string)
	if taskID == "" || videoID == "" || sourcePath == "" {
		return Task{}, fmt.Errorf("payload missing required field(s): task_id, video_id, source_path")
	}

	attempt := 0
	switch v := raw["attempt"].(type) {
	case float64:
		attempt = int(v)
	case int:
		attempt = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return Task{}, fmt.Errorf("invalid attempt field: %w", err)
		}
		attempt = int(n)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return Task{}, fmt.Errorf("invalid attempt field: %w", err)
		}
		attempt = n
	}

	metadata := map[string]string{}
	for k, v := range raw {
		if reservedKeys[k] {
			continue
		}
		if s, ok := v.(string); ok {
			metadata[k] = s
		}
	}

	return Task{
		TaskID:     taskID,
		VideoID:    videoID,
		SourcePath: sourcePath,
		Attempt:    attempt,
		Metadata:   metadata,
	}, nil
}

// unmarshalPayload decodes a JSON message body into the untyped flat map
// used for round-tripping.
func unmarshalPayload(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func marshalPayload(raw map[string]interface{}) ([]byte, error) {
	return json.Marshal(raw)
}
