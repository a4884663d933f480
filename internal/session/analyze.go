package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Analyze submits the claim text for analysis against the whole corpus.
//
// Blank claim text (after trimming) sets a prompt status and issues no request.
// On success the result replaces any previous one and the selection is cleared.
// On failure only the status changes. The Analyzing flag is released on every
// exit path once the latest analysis finishes.
func (s *Store) Analyze(ctx context.Context) error {
	var (
		gen   uint64
		claim string
		blank bool
	)
	s.commit(func(st *State) bool {
		claim = st.ClaimText
		if strings.TrimSpace(claim) == "" {
			blank = true
			st.Status = StatusBlankClaim
			return true
		}
		s.analyzeGen++
		gen = s.analyzeGen
		st.Analyzing = true
		st.Status = StatusAnalyzing
		return true
	})
	if blank {
		s.logger.Debug("analyze skipped: blank claim")
		return ErrBlankClaim
	}
	defer s.commit(func(st *State) bool {
		if gen != s.analyzeGen {
			return false
		}
		st.Analyzing = false
		return true
	})

	log := s.logger.With(zap.Uint64("generation", gen))
	log.Debug("analyzing claim")
	res, err := s.backend.Analyze(ctx, claim)
	if err != nil {
		log.Debug("analyze failed", zap.Error(err))
		if !s.commit(func(st *State) bool {
			if gen != s.analyzeGen {
				return false
			}
			st.Status = StatusAnalyzeFailed
			return true
		}) {
			return ErrSuperseded
		}
		return fmt.Errorf("analyze: %w", err)
	}
	log.Debug("analysis response", zap.String("decision", res.Decision), zap.Int("citations", len(res.Citations)))

	if !s.commit(func(st *State) bool {
		if gen != s.analyzeGen {
			return false
		}
		st.Analysis = res
		st.Status = StatusAnalyzed
		st.Selection = Selection{}
		return true
	}) {
		log.Debug("discarding stale analysis response")
		return ErrSuperseded
	}
	return nil
}
