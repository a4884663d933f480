package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// UploadFile reads the file at path and uploads it. A read failure is reported
// like any other upload failure.
func (s *Store) UploadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("policy file unreadable", zap.String("path", path), zap.Error(err))
		s.commit(func(st *State) bool {
			st.Status = StatusIngestFailed
			return true
		})
		return fmt.Errorf("read %s: %w", path, err)
	}
	return s.Upload(ctx, filepath.Base(path), data)
}

// Upload ingests a policy document under a fresh "policy-<unix millis>" id.
//
// On success the status reports the indexed chunk count, a notification is
// shown for the notify timeout, the analysis result and selection are cleared,
// any in-flight analysis is superseded, and the policy list is refreshed.
// On failure only the status changes. A successful ingest overtaken by a newer
// upload returns ErrSuperseded; its document is still kept for viewing. The
// Uploading flag is released on every exit path once the latest upload
// finishes.
func (s *Store) Upload(ctx context.Context, name string, data []byte) error {
	var gen uint64
	s.commit(func(st *State) bool {
		s.uploadGen++
		gen = s.uploadGen
		st.Uploading = true
		st.Status = fmt.Sprintf(statusUploadingFmt, name)
		return true
	})
	defer s.commit(func(st *State) bool {
		if gen != s.uploadGen {
			return false
		}
		st.Uploading = false
		return true
	})

	policyID := NewPolicyID(s.now())
	log := s.logger.With(zap.String("policy_id", policyID), zap.String("filename", name), zap.Uint64("generation", gen))
	log.Debug("uploading policy")

	res, err := s.backend.Ingest(ctx, policyID, name, bytes.NewReader(data))
	if err != nil {
		log.Debug("policy ingest failed", zap.Error(err))
		s.commit(func(st *State) bool {
			if gen != s.uploadGen {
				return false
			}
			st.Status = StatusIngestFailed
			return true
		})
		return fmt.Errorf("upload %s: %w", name, err)
	}
	log.Debug("policy ingested", zap.Int("chunks", res.ChunksIndexed))

	applied := s.commit(func(st *State) bool {
		// The backend holds the policy either way, so its bytes stay viewable.
		s.documents[name] = data
		if gen != s.uploadGen {
			return false
		}
		st.Status = fmt.Sprintf(statusIngestedFmt, res.ChunksIndexed, name)
		st.Analysis = nil
		st.Selection = Selection{}
		st.Document = name
		st.Uploads++
		// Citations from an in-flight analysis would reference the previous corpus.
		s.analyzeGen++
		st.Analyzing = false
		s.showNotificationLocked(fmt.Sprintf(notificationFmt, res.ChunksIndexed, name))
		return true
	})
	if !applied {
		log.Debug("discarding stale ingest response")
		return ErrSuperseded
	}
	_ = s.RefreshPolicies(ctx)
	return nil
}

// NewPolicyID returns the id a policy uploaded at t is ingested under.
func NewPolicyID(t time.Time) string {
	return policyIDPrefix + strconv.FormatInt(t.UnixMilli(), 10)
}
