package hal

import "slices"

// DefaultZSLMaxStored bounds the number of stored ZSL frames
const DefaultZSLMaxStored = 8

// storedMetadata pairs a retained metadata token with the bidirectional
// buffer captured for the same frame. Either side may arrive first.
type storedMetadata struct {
	frameNumber uint32
	token       *MetadataBuffer
	zslHandle   BufferHandle
}

func (s *storedMetadata) complete() bool {
	return s.token != nil && s.zslHandle != NullBuffer
}

// zslStore keeps metadata of frames that may later be reprocessed.
// Entries are kept in insertion order; the oldest is evicted at capacity.
type zslStore struct {
	entries []*storedMetadata
	max     int
}

func newZSLStore(maxStored int) *zslStore {
	if maxStored <= 0 {
		maxStored = DefaultZSLMaxStored
	}
	return &zslStore{max: maxStored}
}

func (z *zslStore) len() int { return len(z.entries) }

func (z *zslStore) find(frameNumber uint32) *storedMetadata {
	for _, e := range z.entries {
		if e.frameNumber == frameNumber {
			return e
		}
	}
	return nil
}

// entry returns the entry for frameNumber, creating it when missing.
// Creating may evict the oldest entry, which is returned so its token can
// be released.
func (z *zslStore) entry(frameNumber uint32) (e, evicted *storedMetadata) {
	if e = z.find(frameNumber); e != nil {
		return e, nil
	}
	if len(z.entries) >= z.max {
		evicted = z.entries[0]
		z.entries = slices.Delete(z.entries, 0, 1)
	}
	e = &storedMetadata{frameNumber: frameNumber}
	z.entries = append(z.entries, e)
	return e, evicted
}

// storeToken records token for frameNumber. It returns the token it
// replaced, if any, and any entry evicted to make room.
func (z *zslStore) storeToken(frameNumber uint32, token *MetadataBuffer) (replaced *MetadataBuffer, evicted *storedMetadata) {
	e, evicted := z.entry(frameNumber)
	replaced, e.token = e.token, token
	return replaced, evicted
}

// storeHandle records the bidirectional buffer captured for frameNumber
func (z *zslStore) storeHandle(frameNumber uint32, handle BufferHandle) (evicted *storedMetadata) {
	e, evicted := z.entry(frameNumber)
	e.zslHandle = handle
	return evicted
}

// takeReprocess removes and returns the entry whose buffer is handle and
// which holds a token.
func (z *zslStore) takeReprocess(handle BufferHandle) *storedMetadata {
	return z.take(func(e *storedMetadata) bool {
		return e.zslHandle == handle && e.token != nil
	})
}

// takeByHandle removes and returns the entry whose buffer is handle
func (z *zslStore) takeByHandle(handle BufferHandle) *storedMetadata {
	return z.take(func(e *storedMetadata) bool { return e.zslHandle == handle })
}

func (z *zslStore) take(match func(*storedMetadata) bool) *storedMetadata {
	i := slices.IndexFunc(z.entries, match)
	if i < 0 {
		return nil
	}
	e := z.entries[i]
	z.entries = slices.Delete(z.entries, i, i+1)
	return e
}

// drain empties the store and returns every held token
func (z *zslStore) drain() []*MetadataBuffer {
	var tokens []*MetadataBuffer
	for _, e := range z.entries {
		if e.token != nil {
			tokens = append(tokens, e.token)
		}
	}
	z.entries = nil
	return tokens
}
