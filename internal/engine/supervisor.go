package engine

import (
	"context"
	"sync"
	"time"

	collabErrors "school-collab/internal/errors"
	"school-collab/internal/eventbus"
	"school-collab/internal/protocol"

	"github.com/golang/glog"
)

// supervise connects, serves and reconnects with exponential backoff until
// ctx is cancelled or the attempts run out. failed reports that the attempts
// ran out for a session that is still current.
func (self *Engine) supervise(ctx context.Context, session uint64) (attempts int, failed bool) {
	for {
		self.setState(session, StateConnecting)

		auth, ok := self.authFrame()
		if !ok {
			self.setState(session, StateDisconnected)
			return 0, false
		}

		conn, err := self.settings.Dial(ctx, self.settings.URL, auth)
		if err == nil {
			err = self.serve(ctx, session, conn)
		}
		if ctx.Err() != nil {
			self.setState(session, StateDisconnected)
			return 0, false
		}
		glog.Infof("[engine]connection lost (%s): %s", collabErrors.KindOf(err), err)

		delay, attempt, retry := self.nextBackoff(session)
		if !retry {
			if !self.current(session) {
				return 0, false
			}
			glog.Errorf("[engine]%s", collabErrors.MaxReconnectExceeded(attempt))
			return attempt, true
		}
		glog.Infof("[engine]reconnect attempt %d in %s", attempt, delay)

		select {
		case <-ctx.Done():
			self.setState(session, StateDisconnected)
			return 0, false
		case <-self.settings.After(delay):
		}
	}
}

// nextBackoff advances the attempt counter. retry is false once the counter
// already reached MaxAttempts or the session was replaced.
func (self *Engine) nextBackoff(session uint64) (delay time.Duration, attempt int, retry bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.session != session {
		return 0, self.attempt, false
	}
	if self.settings.MaxAttempts <= self.attempt {
		self.state = StateFailed
		return 0, self.attempt, false
	}
	self.attempt += 1
	return BackoffDelay(self.settings.BaseDelay, self.attempt), self.attempt, true
}

// serve owns one live connection: receive loop plus both schedulers
func (self *Engine) serve(ctx context.Context, session uint64, conn Conn) error {
	self.mutex.Lock()
	if self.session != session {
		self.mutex.Unlock()
		conn.Close()
		return nil
	}
	self.conn = conn
	self.attempt = 0
	self.state = StateConnected
	self.mutex.Unlock()

	// the server replays joins for everyone online
	self.roster.Reset()
	glog.Infof("[engine]connected connection=%s", conn.ConnectionID())
	self.emitOwned(eventbus.Connected{ConnectionID: conn.ConnectionID()})

	connCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(connCtx, func() {
		conn.Close()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		self.runHeartbeat(connCtx)
	}()
	go func() {
		defer wg.Done()
		self.runPresence(connCtx)
	}()
	self.broadcastPresence()

	err := conn.Run(self.dispatch)

	stop()
	cancel()
	wg.Wait()
	conn.Close()

	self.mutex.Lock()
	if self.conn == conn {
		self.conn = nil
	}
	if self.session == session {
		self.state = StateDisconnected
	}
	self.mutex.Unlock()

	if err == nil && ctx.Err() == nil {
		err = collabErrors.Transport(collabErrors.New("connection closed"))
	}
	self.emitOwned(eventbus.Disconnected{Err: err})
	return err
}

// dispatch routes one inbound frame on the supervisor goroutine
func (self *Engine) dispatch(message []byte) {
	self.dispatching.Add(1)
	defer self.dispatching.Add(-1)
	self.route(message)
}

// emitOwned publishes from the supervisor goroutine. Handlers it runs may
// call Disconnect, which then must not wait for that goroutine.
func (self *Engine) emitOwned(event eventbus.Event) {
	self.dispatching.Add(1)
	defer self.dispatching.Add(-1)
	self.bus.Emit(event)
}

func (self *Engine) authFrame() (protocol.RealtimeEvent, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.localUser == nil {
		return protocol.RealtimeEvent{}, false
	}
	return protocol.NewAuth(*self.localUser, self.settings.Token), true
}

func (self *Engine) setState(session uint64, state State) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.session == session {
		self.state = state
	}
}

func (self *Engine) current(session uint64) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.session == session
}
