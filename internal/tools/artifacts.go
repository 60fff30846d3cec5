package tools

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// Frame is one sampled image, kept in memory so the model can refer to it by
// id instead of carrying base64 data through the conversation.
type Frame struct {
	ID        string  `json:"frame_id"`
	Handle    string  `json:"handle"`
	Position  float64 `json:"position"`
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	MimeType  string  `json:"mime_type"`
	Bytes     int     `json:"bytes"`
	Data      []byte  `json:"-"`
}

// Base64 returns the encoded image payload for vision requests.
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// FrameStore holds sampled frames for the lifetime of a run.
type FrameStore struct {
	mu     sync.RWMutex
	frames map[string]Frame
	next   int
}

func NewFrameStore() *FrameStore {
	return &FrameStore{frames: make(map[string]Frame)}
}

// Add stores f under a fresh frame_N id and returns the stored frame.
func (s *FrameStore) Add(f Frame) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	f.ID = fmt.Sprintf("frame_%d", s.next)
	f.Bytes = len(f.Data)
	s.frames[f.ID] = f
	return f
}

func (s *FrameStore) Get(id string) (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	return f, ok
}

func (s *FrameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}
