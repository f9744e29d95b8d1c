package realtime

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// wsStream exposes a websocket as the byte stream a STOMP client expects.
// Every Write is one text message; reads run across message boundaries.
type wsStream struct {
	ws     *websocket.Conn
	reader io.Reader

	wmu  sync.Mutex
	once sync.Once
	done chan struct{}
}

func newWSStream(ws *websocket.Conn) *wsStream {
	return &wsStream{ws: ws, done: make(chan struct{})}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				s.fail()
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			s.fail()
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		s.fail()
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.fail()
	return s.ws.Close()
}

func (s *wsStream) fail() {
	s.once.Do(func() { close(s.done) })
}
