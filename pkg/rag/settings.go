package rag

import (
	"strings"
	"sync"
)

// SettingsSnapshot is the runtime-editable part of the answer path.
type SettingsSnapshot struct {
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"llm_model"`
}

// Settings is safe for concurrent use; updates apply to the next query.
type Settings struct {
	mu      sync.RWMutex
	current SettingsSnapshot
}

func NewSettings(systemPrompt, model string) *Settings {
	return &Settings{current: SettingsSnapshot{SystemPrompt: systemPrompt, Model: model}}
}

func (s *Settings) Get() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the non-empty fields of u and returns the new settings.
func (s *Settings) Update(u SettingsSnapshot) SettingsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := strings.TrimSpace(u.SystemPrompt); p != "" {
		s.current.SystemPrompt = p
	}
	if m := strings.TrimSpace(u.Model); m != "" {
		s.current.Model = m
	}
	return s.current
}
