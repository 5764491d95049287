package session

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"path/filepath"
)

// PrivacyFilter masks identifying fields of sessions before they leave the
// process. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskSessionIDs bool
	MaskPIDs       bool
	MaskLogPaths   bool
	MaskTargetURLs bool
}

// SessionID returns id, or a short stable hash of it when masking.
func (f *PrivacyFilter) SessionID(id string) string {
	if f.MaskSessionIDs && id != "" {
		return shortHash(id)
	}
	return id
}

func (f *PrivacyFilter) PID(pid int) int {
	if f.MaskPIDs {
		return 0
	}
	return pid
}

// LogPath reduces a log path to its file name when masking.
func (f *PrivacyFilter) LogPath(path string) string {
	if f.MaskLogPaths && path != "" {
		return filepath.Base(path)
	}
	return path
}

// TargetURL keeps only the scheme of a launch URL when masking. Launch
// URLs carry place ids and access codes.
func (f *PrivacyFilter) TargetURL(raw string) string {
	if !f.MaskTargetURLs || raw == "" {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return u.Scheme + ":"
	}
	return ""
}

// Apply returns a masked copy of s. The original is never modified.
func (f *PrivacyFilter) Apply(s Session) Session {
	masked := s.Clone()
	masked.ID = f.SessionID(masked.ID)
	masked.ProcessID = f.PID(masked.ProcessID)
	masked.LogFilePath = f.LogPath(masked.LogFilePath)
	masked.TargetURL = f.TargetURL(masked.TargetURL)
	return masked
}

// FilterSlice returns masked copies of sessions.
func (f *PrivacyFilter) FilterSlice(sessions []Session) []Session {
	result := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, f.Apply(s))
	}
	return result
}

// IsNoop reports whether the filter masks nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskSessionIDs && !f.MaskPIDs && !f.MaskLogPaths && !f.MaskTargetURLs
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
