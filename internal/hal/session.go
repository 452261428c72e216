package hal

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/camhal/internal/errors"
)

// CameraInfo is the static description of one camera
type CameraInfo struct {
	ID          string
	Facing      string // "back" or "front"
	Orientation int32
	MaxFps      int32
	Width       uint32
	Height      uint32
}

// SessionRegistry owns the static camera table and enforces a single active
// session across all cameras.
type SessionRegistry struct {
	mu      sync.Mutex
	cameras map[string]CameraInfo
	active  *Session
}

// NewSessionRegistry returns a registry for the given cameras
func NewSessionRegistry(cameras ...CameraInfo) *SessionRegistry {
	r := &SessionRegistry{cameras: make(map[string]CameraInfo, len(cameras))}
	for _, c := range cameras {
		r.cameras[c.ID] = c
	}
	return r
}

// Camera returns the static info of a camera
func (r *SessionRegistry) Camera(id string) (CameraInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cameras[id]
	return c, ok
}

// CameraIDs returns the known camera ids in sorted order
func (r *SessionRegistry) CameraIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.cameras))
}

// TryAcquire opens a session on cameraID. It fails with ErrBusy while any
// session is active.
func (r *SessionRegistry) TryAcquire(cameraID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.cameras[cameraID]
	if !ok {
		return nil, halError(errors.CategoryUnknownCamera, "camera %q is not registered", cameraID).
			Context("camera_id", cameraID).
			Build()
	}
	if r.active != nil {
		return nil, halError(errors.CategoryCameraBusy, "camera %q already has an active session", r.active.CameraID).
			Context("camera_id", cameraID).
			Context("active_session", r.active.ID.String()).
			Build()
	}

	s := &Session{
		ID:       uuid.New(),
		CameraID: cameraID,
		Camera:   info,
		Acquired: time.Now(),
		registry: r,
	}
	r.active = s
	return s, nil
}

// Active returns the active session, if any
func (r *SessionRegistry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *SessionRegistry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

// Session is an exclusive hold on one camera
type Session struct {
	ID       uuid.UUID
	CameraID string
	Camera   CameraInfo
	Acquired time.Time

	registry *SessionRegistry
	once     sync.Once
}

// Release ends the session. It is safe to call more than once.
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.registry.release(s)
	})
}
