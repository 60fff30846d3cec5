package tools

import (
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLocatorCacheSize = 64

// Media is a locally materialized video.
type Media struct {
	Handle    string  `json:"handle"`
	Path      string  `json:"video_path"`
	Locator   string  `json:"url,omitempty"`
	Title     string  `json:"title,omitempty"`
	Duration  float64 `json:"duration"`
	SizeBytes int64   `json:"size_bytes,omitempty"`
	Cached    bool    `json:"cached,omitempty"`
}

// MediaStore tracks downloaded media by handle and remembers which locator
// produced which handle, so a repeated download request reuses the file.
type MediaStore struct {
	mu        sync.RWMutex
	byHandle  map[string]Media
	byLocator *lru.Cache[string, string]
}

func NewMediaStore(locatorCacheSize int) *MediaStore {
	if locatorCacheSize <= 0 {
		locatorCacheSize = defaultLocatorCacheSize
	}
	cache, _ := lru.New[string, string](locatorCacheSize)
	return &MediaStore{
		byHandle:  make(map[string]Media),
		byLocator: cache,
	}
}

// Put stores m, assigning a handle if it has none, and returns the stored value.
func (s *MediaStore) Put(m Media) Media {
	if m.Handle == "" {
		m.Handle = newMediaHandle()
	}
	m.Cached = false
	s.mu.Lock()
	s.byHandle[m.Handle] = m
	s.mu.Unlock()
	if m.Locator != "" {
		s.byLocator.Add(m.Locator, m.Handle)
	}
	return m
}

// Get returns the media registered under handle.
func (s *MediaStore) Get(handle string) (Media, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byHandle[handle]
	return m, ok
}

// Lookup returns previously downloaded media for locator if its file still
// exists on disk.
func (s *MediaStore) Lookup(locator string) (Media, bool) {
	handle, ok := s.byLocator.Get(locator)
	if !ok {
		return Media{}, false
	}
	m, ok := s.Get(handle)
	if !ok {
		return Media{}, false
	}
	if _, err := os.Stat(m.Path); err != nil {
		s.byLocator.Remove(locator)
		return Media{}, false
	}
	m.Cached = true
	return m, true
}

// Resolve accepts either a media handle or a path to an existing video file.
// Paths are registered on first use so later calls see a stable handle.
func (s *MediaStore) Resolve(ref string) (Media, bool) {
	ref = strings.TrimSpace(ref)
	if m, ok := s.Get(ref); ok {
		return m, true
	}
	if strings.HasPrefix(ref, mediaHandlePrefix) {
		return Media{}, false
	}
	info, err := os.Stat(ref)
	if err != nil || info.IsDir() {
		return Media{}, false
	}
	s.mu.RLock()
	for _, m := range s.byHandle {
		if m.Path == ref {
			s.mu.RUnlock()
			return m, true
		}
	}
	s.mu.RUnlock()
	return s.Put(Media{Path: ref, SizeBytes: info.Size()}), true
}

const mediaHandlePrefix = "media_"

func newMediaHandle() string {
	return mediaHandlePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
