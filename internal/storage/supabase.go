package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
)

// Archiver persists conversation transcripts.
type Archiver interface {
	ArchiveTranscript(ctx context.Context, sessionID string, entries []conversation.Entry) error
}

// SupabaseArchiver stores transcripts as plain-text objects in a Supabase
// storage bucket, one object per session.
type SupabaseArchiver struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	Client     *http.Client
}

// NewSupabaseArchiver constructs an archiver for the given project.
func NewSupabaseArchiver(baseURL, serviceKey, bucket string) *SupabaseArchiver {
	if bucket == "" {
		bucket = "transcripts"
	}
	return &SupabaseArchiver{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Bucket:     bucket,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether the archiver has enough configuration to upload.
func (s *SupabaseArchiver) Enabled() bool {
	return s.BaseURL != "" && s.ServiceKey != ""
}

// ArchiveTranscript uploads the rendered transcript. Empty conversations are
// skipped without error.
func (s *SupabaseArchiver) ArchiveTranscript(ctx context.Context, sessionID string, entries []conversation.Entry) error {
	if !s.Enabled() {
		return fmt.Errorf("missing supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	if len(entries) == 0 {
		return nil
	}

	body := conversation.Transcript(entries)
	objectKey := fmt.Sprintf("%s/%s.txt", time.Now().UTC().Format("2006-01-02"), sessionID)
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.BaseURL, s.Bucket, objectKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "true")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("transcript upload failed with status %d", resp.StatusCode)
	}
	return nil
}
