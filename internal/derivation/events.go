package derivation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// SourceEvent identifies one newly created storage object. The key is fully
// decoded; notification payloads percent-encode it with '+' for spaces.
type SourceEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ResultEvent is emitted once a pipeline run reaches a terminal state.
type ResultEvent struct {
	ID                 string    `json:"id"`
	Bucket             string    `json:"bucket"`
	SourceKey          string    `json:"source_key"`
	StatusCode         int       `json:"status_code"`
	VideoReplaced      bool      `json:"video_replaced"`
	VideoKey           string    `json:"video_key,omitempty"`
	AnimatedPreviewKey string    `json:"animated_preview_key,omitempty"`
	StillPreviewKey    string    `json:"still_preview_key,omitempty"`
	Error              string    `json:"error,omitempty"`
	CompletedAt        time.Time `json:"completed_at"`
}

type s3Notification struct {
	Records []s3Record `json:"Records"`
}

type s3Record struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseNotification decodes an S3-style storage-created notification into
// source events, unescaping each object key.
func ParseNotification(payload []byte) ([]SourceEvent, error) {
	var doc s3Notification
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if len(doc.Records) == 0 {
		return nil, fmt.Errorf("notification contains no records")
	}

	events := make([]SourceEvent, 0, len(doc.Records))
	for _, rec := range doc.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode object key %q: %w", rec.S3.Object.Key, err)
		}
		if rec.S3.Bucket.Name == "" || key == "" {
			return nil, fmt.Errorf("notification record missing bucket or key")
		}
		events = append(events, SourceEvent{Bucket: rec.S3.Bucket.Name, Key: key})
	}
	return events, nil
}
