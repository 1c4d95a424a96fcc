package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ehr/theatre/internal/domain/theatre"
)

const (
	dialTimeout = 10 * time.Second
	minBackoff  = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// Dialer subscribes to the backend's realtime event stream. Each Subscribe
// opens its own connection, sends a subscribe message for the event name
// and delivers matching events until unsubscribed. Dropped connections are
// re-dialed with exponential backoff.
type Dialer struct {
	url    string
	header http.Header
	dialer *gorillawebsocket.Dialer
	logger zerolog.Logger
}

var _ theatre.RealtimeBus = (*Dialer)(nil)

// NewDialer returns a Dialer for a ws:// or wss:// URL. A non-empty token is
// sent as a bearer token on the upgrade request.
func NewDialer(url, token string, logger zerolog.Logger) *Dialer {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Dialer{
		url:    url,
		header: header,
		dialer: &gorillawebsocket.Dialer{HandshakeTimeout: dialTimeout},
		logger: logger.With().Str("component", "realtime_bus").Logger(),
	}
}

// Subscribe dials the stream and returns once the subscription is sent. The
// returned function closes the connection and stops reconnecting.
func (d *Dialer) Subscribe(event string, handler func(theatre.RealtimeEvent)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := d.connect(ctx, event)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &subscription{
		dialer:  d,
		event:   event,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		conn:    conn,
		done:    make(chan struct{}),
	}
	go s.run()
	return s.close, nil
}

func (d *Dialer) connect(ctx context.Context, event string) (*gorillawebsocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := d.dialer.DialContext(dctx, d.url, d.header)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", d.url, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{event}}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", event, err)
	}
	return conn, nil
}

type subscription struct {
	dialer  *Dialer
	event   string
	handler func(theatre.RealtimeEvent)
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}

	mu   sync.Mutex
	conn *gorillawebsocket.Conn
}

func (s *subscription) run() {
	defer close(s.done)
	log := s.dialer.logger.With().Str("event", s.event).Logger()
	retry := newReconnectBackOff(s.ctx)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		err := s.readLoop(conn)
		if s.ctx.Err() != nil {
			return
		}
		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		log.Warn().Err(err).Dur("retry_in", wait).Msg("realtime connection lost")

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		next, err := s.dialer.connect(s.ctx, s.event)
		if err != nil {
			log.Warn().Err(err).Msg("realtime reconnect failed")
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			_ = next.Close()
			return
		}
		s.conn = next
		s.mu.Unlock()
		retry.Reset()
		log.Info().Msg("realtime reconnected")
	}
}

// newReconnectBackOff retries forever until ctx is cancelled.
func newReconnectBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minBackoff
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(b, ctx)
}

var errNoConnection = errors.New("realtime: no connection")

func (s *subscription) readLoop(conn *gorillawebsocket.Conn) error {
	if conn == nil {
		return errNoConnection
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok := decodeEvent(raw, s.event)
		if !ok {
			continue
		}
		s.handler(ev)
	}
}

// decodeEvent extracts a workflow-update payload from a wire message. Only
// messages whose type or topic equals event are accepted.
func decodeEvent(raw []byte, event string) (theatre.RealtimeEvent, bool) {
	var msg Event
	if err := json.Unmarshal(raw, &msg); err != nil {
		return theatre.RealtimeEvent{}, false
	}
	if msg.Type != event && msg.Topic != event {
		return theatre.RealtimeEvent{}, false
	}
	var ev theatre.RealtimeEvent
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &ev)
	}
	if ev.CaseKey() == "" && msg.CaseID != "" {
		ev.TheatreCasePublicID = msg.CaseID
	}
	return ev, true
}

func (s *subscription) close() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(gorillawebsocket.CloseMessage,
				gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
		<-s.done
	})
}
