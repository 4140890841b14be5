package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabboard/internal/board"
	"collabboard/internal/persist"
	"collabboard/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 90 * time.Second
	sendBuffer = 256
)

var (
	ErrOffline      = errors.New("session: not connected")
	ErrBackpressure = errors.New("session: send buffer full")
	ErrDisconnected = errors.New("session: disconnected")
)

// Config describes the room a Session joins.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8081/ws".
	URL          string
	RoomID       string
	Token        string
	SaveInterval time.Duration
}

// Session connects an Editor to a room. Everything touching the board runs on
// the goroutine that called Run; other goroutines go through Do.
type Session struct {
	cfg      Config
	bridge   persist.Bridge
	dialer   *websocket.Dialer
	editor   *Editor
	onRemote func(protocol.Message)
	ready    chan struct{}
	cmds     chan func(*Editor)
	log      zerolog.Logger
}

type Option func(*Session)

// WithBridge enables hydrate on join and periodic autosave.
func WithBridge(b persist.Bridge) Option { return func(s *Session) { s.bridge = b } }

func WithDialer(d *websocket.Dialer) Option { return func(s *Session) { s.dialer = d } }

func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

// WithRemoteHook calls f on the event loop after each peer message that
// changed the board.
func WithRemoteHook(f func(protocol.Message)) Option { return func(s *Session) { s.onRemote = f } }

// WithEditorOptions configures the underlying Editor.
func WithEditorOptions(opts ...EditorOption) Option {
	return func(s *Session) {
		for _, o := range opts {
			o(s.editor)
		}
	}
}

func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		editor: NewEditor(offline{}),
		ready:  make(chan struct{}),
		cmds:   make(chan func(*Editor)),
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("room", cfg.RoomID).Logger()
	s.editor.log = s.log
	return s
}

// Ready is closed once the first Run has joined and hydrated.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Do runs f on the event loop and waits for it. It blocks while no Run is
// active, until ctx is done.
func (s *Session) Do(ctx context.Context, f func(*Editor)) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func(e *Editor) { f(e); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Snapshot copies the board from the event loop.
func (s *Session) Snapshot(ctx context.Context) (board.Snapshot, error) {
	var snap board.Snapshot
	err := s.Do(ctx, func(e *Editor) { snap = e.Snapshot() })
	return snap, err
}

// Run dials the room, joins it, loads the stored board and then serves local
// commands and peer messages until ctx is done or the connection drops. It
// returns nil on cancellation. Run may be called again after it returns;
// the local history survives a reconnect.
func (s *Session) Run(ctx context.Context) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, sendBuffer)
	go s.writePump(ctx, conn, out)

	join, err := protocol.Encode(protocol.Join(s.cfg.RoomID))
	if err != nil {
		return err
	}
	out <- join

	s.editor.out = &connOutbox{room: s.cfg.RoomID, out: out}
	defer func() { s.editor.out = offline{} }()
	hydrated := s.hydrate(ctx)
	s.log.Info().Int("objects", s.editor.doc.Count()).Msg("joined room")
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}

	incoming := make(chan protocol.Message)
	readErr := make(chan error, 1)
	go s.readPump(ctx, conn, incoming, readErr)

	// Saving a board that failed to load would overwrite the stored one.
	// The next Run retries the load.
	switch {
	case s.bridge == nil || s.cfg.SaveInterval <= 0:
	case !hydrated:
		s.log.Warn().Msg("autosave off until the board loads")
	default:
		a := &persist.Autosaver{
			Bridge:   s.bridge,
			RoomID:   s.cfg.RoomID,
			Interval: s.cfg.SaveInterval,
			Log:      s.log,
		}
		go a.Run(ctx, s.Snapshot)
	}

	for {
		select {
		case f := <-s.cmds:
			f(s.editor)
		case m := <-incoming:
			if s.editor.ApplyRemote(m) && s.onRemote != nil {
				s.onRemote(m)
			}
		case err := <-readErr:
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		case <-ctx.Done():
			return nil
		}
	}
}

// hydrate replaces the board with the stored one and reports whether the
// store answered. A failed load leaves the board as it is.
func (s *Session) hydrate(ctx context.Context) bool {
	if s.bridge == nil {
		return false
	}
	snap, ok, err := s.bridge.Load(ctx, s.cfg.RoomID)
	if err != nil {
		s.log.Warn().Err(err).Msg("load board failed")
		return false
	}
	if ok {
		s.editor.Hydrate(snap)
	}
	return true
}

func (s *Session) readPump(ctx context.Context, conn *websocket.Conn, incoming chan<- protocol.Message, readErr chan<- error) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		m, err := protocol.Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("ignoring peer message")
			continue
		}
		select {
		case incoming <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case raw := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

type connOutbox struct {
	room string
	out  chan<- []byte
}

func (o *connOutbox) Send(m protocol.Message) error {
	raw, err := protocol.Encode(m.InRoom(o.room))
	if err != nil {
		return err
	}
	select {
	case o.out <- raw:
		return nil
	default:
		return ErrBackpressure
	}
}

type offline struct{}

func (offline) Send(protocol.Message) error { return ErrOffline }
