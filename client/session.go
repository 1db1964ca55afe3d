package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"roundify/models"
)

// State is a step of the upload → clip → download flow.
type State int

const (
	Idle State = iota
	AwaitingMetadata
	Ready
	Submitting
	Processing
	Completed
	Expired
)

var stateNames = [...]string{"idle", "awaiting_metadata", "ready", "submitting", "processing", "completed", "expired"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrTransition is returned for an action the current state does not allow.
var ErrTransition = errors.New("invalid state transition")

// Session tracks one user's flow through a job. It holds no connections;
// the caller feeds it upload results and push-channel events.
type Session struct {
	mu  sync.Mutex
	now func() time.Time

	maxUpload int64
	state     State
	meta      *Metadata
	clipMS    float64
	progress  float64
	position  int
	status    string
	download  string
	ttl       int
	expiresAt time.Time
	telegram  bool
	err       error
}

// NewSession returns an idle session. now defaults to time.Now and drives
// the download countdown.
func NewSession(maxUpload int64, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{now: now, maxUpload: maxUpload}
}

func (s *Session) transition(to State, from ...State) error {
	for _, f := range from {
		if s.state == f {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrTransition, s.state, to)
}

// SelectFile starts a new upload of size bytes. An oversized file is
// rejected without leaving Idle.
func (s *Session) SelectFile(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxUpload > 0 && size > s.maxUpload {
		s.err = fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, size, s.maxUpload)
		return s.err
	}
	if err := s.transition(AwaitingMetadata, Idle, Completed, Expired); err != nil {
		return err
	}
	s.clear()
	return nil
}

// MetadataReceived records a successful upload.
func (s *Session) MetadataReceived(meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(Ready, AwaitingMetadata); err != nil {
		return err
	}
	s.meta = &meta
	return nil
}

// Fail returns the session to Idle with err as the reason.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.clear()
	s.err = err
}

// Submit records the clip length of the requested conversion.
func (s *Session) Submit(clipSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clipSeconds <= 0 {
		return fmt.Errorf("clip length must be positive, got %v", clipSeconds)
	}
	if err := s.transition(Submitting, Ready); err != nil {
		return err
	}
	s.clipMS = clipSeconds * 1000
	s.progress = 0
	s.err = nil
	return nil
}

// Submitted marks the request as accepted by the server.
func (s *Session) Submitted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(Processing, Submitting, Processing)
}

// Apply folds a push-channel event into the session.
func (s *Session) Apply(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Submitting && s.state != Processing {
		return
	}

	switch ev.Type {
	case models.EventQueued:
		s.state = Processing
		s.position = ev.Position
	case models.EventStatus:
		s.state = Processing
		s.position = 0
		s.status = ev.Status
	case models.EventProgress:
		s.state = Processing
		s.position = 0
		if s.clipMS <= 0 {
			return
		}
		if f := clamp(float64(ev.MS) / s.clipMS); f > s.progress {
			s.progress = f
		}
	case models.EventDone:
		s.state = Completed
		s.progress = 1
		s.download = ev.Download
		s.ttl = ev.TTL
		s.telegram = ev.Telegram
		s.expiresAt = s.now().Add(time.Duration(ev.TTL) * time.Second)
	case models.EventError:
		s.state = Idle
		s.clear()
		s.err = errors.New(ev.Message)
	case models.EventRejected:
		// The server refused the request; the upload is still there.
		if s.state == Submitting {
			s.state = Ready
			s.clipMS = 0
			s.err = errors.New(ev.Message)
		}
	}
}

// Tick advances the download countdown. A Completed session whose TTL has
// run out becomes Expired and drops its download link; the next Tick
// returns it to Idle.
func (s *Session) Tick() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Completed:
		if !s.now().Before(s.expiresAt) {
			s.state = Expired
			s.download = ""
		}
	case Expired:
		s.state = Idle
		s.clear()
	}
	return s.state
}

func (s *Session) clear() {
	s.meta = nil
	s.clipMS = 0
	s.progress = 0
	s.position = 0
	s.status = ""
	s.download = ""
	s.ttl = 0
	s.expiresAt = time.Time{}
	s.telegram = false
	s.err = nil
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress is the completed fraction of the clip in [0, 1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Position is the last reported queue position, 0 once processing.
func (s *Session) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Status is the last status_update text.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Metadata() (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return Metadata{}, false
	}
	return *s.meta, true
}

// Download returns the link while it is valid.
func (s *Session) Download() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Completed || !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.download, true
}

// Remaining is the time left on the download link.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Completed {
		return 0
	}
	if d := s.expiresAt.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// Delivered reports whether the finished clip reached Telegram.
func (s *Session) Delivered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telegram
}

// Err is why the session last returned to Idle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
