package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AnswerKey returns the cache key holding a test's serialized answer key.
func (r *CacheKeyStruct) AnswerKey(testID string) string {
	return fmt.Sprintf("test:%s:answer_key", testID)
}

// SessionDraftKey returns the hash key holding autosaved answers for a session.
func (r *CacheKeyStruct) SessionDraftKey(sessionID string) string {
	return fmt.Sprintf("session:%s:draft", sessionID)
}

// AuthRateLimitKey returns the counter key for auth attempts from one client.
func (r *CacheKeyStruct) AuthRateLimitKey(route, clientIP string) string {
	return fmt.Sprintf("ratelimit:auth:%s:%s", route, clientIP)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test's proctor feed
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
