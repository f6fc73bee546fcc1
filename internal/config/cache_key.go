package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ListeningAnswersKey returns the hash holding one JSON answer map per exam for a user.
func (r *CacheKeyStruct) ListeningAnswersKey(userID string) string {
	return fmt.Sprintf("user:%s:listening:answers", userID)
}

// ListeningHighlightsKey returns the list of highlight entries for a user.
func (r *CacheKeyStruct) ListeningHighlightsKey(userID string) string {
	return fmt.Sprintf("user:%s:listening:highlights", userID)
}

// ListeningCurrentExamKey returns the key of the user's current exam session marker.
func (r *CacheKeyStruct) ListeningCurrentExamKey(userID string) string {
	return fmt.Sprintf("user:%s:listening:current_exam", userID)
}

var CacheKey = NewCacheKeyStruct()
