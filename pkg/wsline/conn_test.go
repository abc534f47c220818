package wsline

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ledzpl/linechat/pkg/lineconn"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func TestHandlerFramesLinesAsTextMessages(t *testing.T) {
	result := make(chan error, 1)
	serve := func(_ context.Context, conn lineconn.Framed) error {
		r, w := conn.Split()
		if err := w.WriteLine("Enter your username:"); err != nil {
			return err
		}
		name, err := r.ReadLine()
		if err != nil {
			return err
		}
		if err := w.WriteLine("hello " + name); err != nil {
			return err
		}
		_, err = r.ReadLine()
		result <- err
		return nil
	}

	srv := httptest.NewServer(Handler(serve, nil, WithWriteTimeout(time.Second)))
	defer srv.Close()

	ws := dial(t, srv)
	require.Equal(t, "Enter your username:", readText(t, ws))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("alice\n")))
	require.Equal(t, "hello alice", readText(t, ws))

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	select {
	case err := <-result:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the close frame")
	}
}

func TestReadLineSkipsBinaryFrames(t *testing.T) {
	lines := make(chan string, 1)
	serve := func(_ context.Context, conn lineconn.Framed) error {
		r, _ := conn.Split()
		line, err := r.ReadLine()
		if err != nil {
			return err
		}
		lines <- line
		return nil
	}

	srv := httptest.NewServer(Handler(serve, nil))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hi")))

	select {
	case line := <-lines:
		require.Equal(t, "hi", line)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for text frame")
	}
}

func TestReadLineEnforcesMaxLength(t *testing.T) {
	result := make(chan error, 1)
	serve := func(_ context.Context, conn lineconn.Framed) error {
		r, _ := conn.Split()
		_, err := r.ReadLine()
		result <- err
		return err
	}

	srv := httptest.NewServer(Handler(serve, nil, WithMaxLineLength(8)))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("z", 64))))

	select {
	case err := <-result:
		require.True(t, errors.Is(err, lineconn.ErrLineTooLong), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for read limit")
	}
}

func TestReadLineSplitsMultiLineFrames(t *testing.T) {
	lines := make(chan string, 8)
	serve := func(_ context.Context, conn lineconn.Framed) error {
		r, _ := conn.Split()
		for {
			line, err := r.ReadLine()
			if err != nil {
				close(lines)
				return nil
			}
			lines <- line
		}
	}

	srv := httptest.NewServer(Handler(serve, nil))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hi\ncarol has left the chat")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("one\r\ntwo\r\n")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("")))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				require.Equal(t, []string{"hi", "carol has left the chat", "one", "two", ""}, got)
				return
			}
			got = append(got, line)
		case <-timeout:
			t.Fatalf("timed out, got %q", got)
		}
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		frame string
		want  []string
	}{
		{"hi", []string{"hi"}},
		{"hi\n", []string{"hi"}},
		{"hi\r\n", []string{"hi"}},
		{"a\nb", []string{"a", "b"}},
		{"a\n\nb\n", []string{"a", "", "b"}},
		{"", []string{""}},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, splitLines(tt.frame), "frame %q", tt.frame)
	}
}
