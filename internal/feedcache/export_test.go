package feedcache

// IndexSizes reports how many users and sources the LRU indexes track.
func (l *LRU) IndexSizes() (users, sources int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropEvictedLocked()
	return len(l.userKeys), len(l.sourceUsers)
}
