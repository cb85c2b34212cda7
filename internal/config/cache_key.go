package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateActiveSessionKey returns the cache key holding a candidate's live session ID
func (r *CacheKeyStruct) CandidateActiveSessionKey(candidateID int) string {
	return fmt.Sprintf("candidate:%d:active_session", candidateID)
}

// StaticPoolKey returns the cache key for a subject's static question pool
func (r *CacheKeyStruct) StaticPoolKey(subject string) string {
	return fmt.Sprintf("static:%s:pool", strings.ToLower(subject))
}

// SessionEventsChannel returns the Redis PubSub channel carrying a session's snapshots
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

var CacheKey = NewCacheKeyStruct()
