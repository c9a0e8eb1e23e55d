package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/engine"
	"github.com/nhle/mailgate/internal/transport"
)

// RefreshState represents the current state of the background refresher.
type RefreshState int

const (
	RefreshIdle RefreshState = iota
	RefreshRunning
	RefreshError
)

// RefreshStatus holds the refresher state.
type RefreshStatus struct {
	State       RefreshState
	LastRefresh time.Time
	Error       error
}

// RefreshResultMsg is a tea.Msg sent when a refresh completes.
type RefreshResultMsg struct {
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when the gateway rejects the credentials.
type AuthErrorMsg struct {
	Message string
}

// Refreshable re-lists the selected folder.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// refreshTimeout is the maximum time allowed for a single refresh.
const refreshTimeout = 30 * time.Second

// Refresher periodically re-lists the selected folder so new mail shows
// up without user action. A stale or superseded listing is discarded by
// the target; the refresher only reports outcomes.
type Refresher struct {
	target    Refreshable
	interval  time.Duration
	log       zerolog.Logger
	status    RefreshStatus
	resultCh  chan RefreshResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a refresher for target. An interval of zero or less
// disables the ticker; Trigger still works.
func New(target Refreshable, interval time.Duration, log zerolog.Logger) *Refresher {
	return &Refresher{
		target:    target,
		interval:  interval,
		log:       log,
		resultCh:  make(chan RefreshResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start returns a tea.Cmd that starts the refresh goroutine and waits on
// the result channel.
func (r *Refresher) Start() tea.Cmd {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	r.mu.Unlock()

	go r.loop(stop)

	return r.waitForResult()
}

// Stop halts the refresh goroutine.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stopCh)
	r.running = false
}

// Trigger requests an immediate refresh. Triggers coalesce while one is
// already pending.
func (r *Refresher) Trigger() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the current refresher status.
func (r *Refresher) Status() RefreshStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Refresher) loop(stop <-chan struct{}) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-tick:
			r.refresh()
		case <-r.triggerCh:
			r.refresh()
		}
	}
}

// refresh performs a single refresh and sends its outcome on the result
// channel.
func (r *Refresher) refresh() {
	r.setStatus(RefreshRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	err := r.target.Refresh(ctx)
	if err != nil && !errors.Is(err, engine.ErrSuperseded) {
		r.setStatus(RefreshError, err)

		if transport.IsAuthError(err) {
			r.log.Info().Msg("Refresh unauthorized")
			r.sendResult(RefreshResultMsg{
				Error: err,
				AuthError: &AuthErrorMsg{
					Message: "gateway rejected the credentials. Press 'L' to log in again.",
				},
			})
			return
		}

		r.log.Warn().Err(err).Msg("Refresh failed")
		r.sendResult(RefreshResultMsg{Error: err})
		return
	}

	r.setStatus(RefreshIdle, nil)
	r.sendResult(RefreshResultMsg{})
}

func (r *Refresher) setStatus(state RefreshState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.State = state
	r.status.Error = err
	if state == RefreshIdle {
		r.status.LastRefresh = time.Now()
	}
}

// sendResult sends a RefreshResultMsg without blocking.
func (r *Refresher) sendResult(msg RefreshResultMsg) {
	select {
	case r.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the refresher
	}
}

func (r *Refresher) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-r.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next refresh
// result. Call it after handling a RefreshResultMsg to keep listening.
func (r *Refresher) WaitForNextResult() tea.Cmd {
	return r.waitForResult()
}
