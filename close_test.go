package pql

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockCloser struct {
	closeErr   error
	closeCalls int
}

func (m *mockCloser) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestCloseWithLog(t *testing.T) {
	t.Run("nil closer", func(t *testing.T) {
		var buf bytes.Buffer
		CloseWithLog(nil, slog.New(slog.NewTextHandler(&buf, nil)), "queue")
		assert.Empty(t, buf.String())
	})

	t.Run("successful close", func(t *testing.T) {
		var buf bytes.Buffer
		c := &mockCloser{}
		CloseWithLog(c, slog.New(slog.NewTextHandler(&buf, nil)), "queue")
		assert.Equal(t, 1, c.closeCalls)
		assert.Empty(t, buf.String())
	})

	t.Run("close error is logged", func(t *testing.T) {
		var buf bytes.Buffer
		c := &mockCloser{closeErr: errors.New("connection reset")}
		CloseWithLog(c, slog.New(slog.NewTextHandler(&buf, nil)), "redis queue")

		out := buf.String()
		assert.Contains(t, out, "failed to close resource")
		assert.Contains(t, out, "resource=\"redis queue\"")
		assert.Contains(t, out, "connection reset")
		assert.Contains(t, out, "level=WARN")
	})

	t.Run("nil logger uses default", func(t *testing.T) {
		c := &mockCloser{closeErr: errors.New("boom")}
		assert.NotPanics(t, func() { CloseWithLog(c, nil, "queue") })
		assert.Equal(t, 1, c.closeCalls)
	})
}
