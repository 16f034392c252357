package relay

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"nexo/internal/core/domain"
)

// client is the relay-side record of one connection. Writes are serialized
// by wmu because every other client's read loop may broadcast to it.
type client struct {
	id          domain.ParticipantID
	username    string
	remoteAddr  string
	connectedAt time.Time

	conn net.Conn

	wmu    sync.Mutex
	w      *bufio.Writer
	broken bool

	closeOnce sync.Once
}

// send runs write against the buffered writer and flushes under a deadline.
// After the first failure the client is marked broken and further sends fail
// fast.
func (c *client) send(timeout time.Duration, write func(w io.Writer) error) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.broken {
		return net.ErrClosed
	}
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := write(c.w)
	if err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		c.broken = true
	}
	return err
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

func (c *client) participant(relay string) domain.Participant {
	return domain.Participant{
		ID:          c.id,
		Relay:       relay,
		Username:    c.username,
		RemoteAddr:  c.remoteAddr,
		ConnectedAt: c.connectedAt,
	}
}
