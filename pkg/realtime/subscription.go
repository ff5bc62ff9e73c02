package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	sendBuffer     = 32
)

var (
	ErrAlreadyStarted = errors.New("subscription already started")
	ErrStopped        = errors.New("subscription stopped")
)

// Subscription is the handle a client holds for one live connection.
// Start begins delivery; Stop ends it and may be called any number of times.
type Subscription struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	// mu orders Start against Stop so a stopped subscription never joins
	// the hub.
	mu        sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewSubscription(hub *Hub, conn *websocket.Conn, userID string) *Subscription {
	return &Subscription{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) UserID() string {
	return s.userID
}

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := ErrAlreadyStarted
	s.startOnce.Do(func() {
		select {
		case <-s.done:
			err = ErrStopped
			return
		default:
		}
		err = nil
		s.started.Store(true)
		s.hub.add(s)
		s.wg.Add(2)
		go s.readPump()
		go s.writePump()
	})
	return err
}

// Stop detaches from the hub and signals the pumps. The write pump owns the
// connection and sends the close frame, since gorilla connections allow only
// one concurrent writer.
func (s *Subscription) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
		if !s.started.Load() {
			_ = s.conn.Close()
		}
	})
}

// Wait blocks until both pumps have exited.
func (s *Subscription) Wait() {
	s.wg.Wait()
}

func (s *Subscription) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// readPump only services control frames. Clients never send data on this
// channel; any inbound frame beyond the size limit ends the subscription.
func (s *Subscription) readPump() {
	defer s.wg.Done()
	defer s.Stop()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.log.Debug("Realtime connection closed unexpectedly", "user_id", s.userID, "error", err)
			}
			return
		}
	}
}

func (s *Subscription) writePump() {
	defer s.wg.Done()
	defer s.conn.Close()
	defer s.Stop()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
