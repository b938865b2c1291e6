// Package realtime connects to the recorder's WebSocket endpoints. URLs are
// derived from the API base URL by wsurl; message payloads are passed through
// untouched.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
	"github.com/amishk599/recsmoke/internal/wsurl"
	"github.com/gorilla/websocket"
)

// closeGrace bounds how long Stream waits for the peer to answer a close frame.
const closeGrace = time.Second

// Handler receives each frame read from the connection. Returning an error
// stops the stream.
type Handler func(messageType int, data []byte) error

// Dial opens a WebSocket connection to path on the API host. A failed
// handshake that got an HTTP response is reported as *model.HTTPError.
func Dial(ctx context.Context, b *wsurl.Builder, path string, header http.Header) (*websocket.Conn, error) {
	endpoint := b.Build(path)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, &model.HTTPError{StatusCode: resp.StatusCode, Err: err})
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// Stream reads frames from conn and hands them to fn until the peer closes the
// connection, fn fails, or ctx is cancelled. A normal close and a cancel both
// return nil. The caller still owns conn and must close it.
func Stream(ctx context.Context, conn *websocket.Conn, fn Handler) error {
	done := make(chan error, 1)

	go func() {
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					done <- nil
				} else {
					done <- fmt.Errorf("read: %w", err)
				}
				return
			}
			if err := fn(messageType, data); err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))

	select {
	case <-done:
	case <-time.After(closeGrace):
		// Unblocks the reader.
		conn.Close()
		<-done
	}
	return nil
}
