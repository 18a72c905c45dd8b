// Package dispatch implements the per-connection frame loop and the
// open/kill request dispatcher.
package dispatch

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/go-psyncd/psyncd/internal/pump"
	"github.com/go-psyncd/psyncd/internal/session"
	"github.com/go-psyncd/psyncd/internal/supervisor"
	"github.com/go-psyncd/psyncd/internal/wire"
)

// Conn is the transport surface the dispatcher needs: read one frame line
// at a time, write one frame line at a time, report the peer, and close.
// internal/transport.Conn implements this.
type Conn interface {
	ReadFrame() (string, error)
	WriteFrame(line string) error
	RemoteAddr() string
	Close() error
}

// Handler drives a single connection end to end: parse each incoming
// frame, dispatch it, and reply.
type Handler struct {
	conn           Conn
	table          *session.Table
	log            *logrus.Entry
	inheritBaseEnv bool
	targetUser     string
}

// New constructs a Handler for one accepted, already-admitted connection.
func New(conn Conn, table *session.Table, log *logrus.Entry, inheritBaseEnv bool, targetUser string) *Handler {
	return &Handler{
		conn:           conn,
		table:          table,
		log:            log.WithField("peer", conn.RemoteAddr()),
		inheritBaseEnv: inheritBaseEnv,
		targetUser:     targetUser,
	}
}

// SendResponse serializes and writes one response frame. It satisfies
// pump.Sender, so the pump and the dispatcher both funnel writes through
// the same WriteFrame and therefore the same transport-level write lock.
func (h *Handler) SendResponse(resp wire.Response) error {
	return h.conn.WriteFrame(wire.SerializeResponse(resp))
}

// Serve loops reading frames until the peer closes or a transport error
// fires, dispatching each one. It never returns an error for a fault it
// already contained to this connection; it returns nil on ordinary close.
func (h *Handler) Serve() error {
	peer := h.conn.RemoteAddr()
	defer h.teardown(peer)

	for {
		line, err := h.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		req, err := wire.ParseRequest(line)
		if err != nil {
			h.log.WithError(err).Warn("dispatch: dropping unparseable frame")
			if sendErr := h.SendResponse(wire.Error{Msg: err.Error()}); sendErr != nil {
				return sendErr
			}
			continue
		}

		switch r := req.(type) {
		case wire.Open:
			if err := h.handleOpen(peer, r); err != nil {
				return err
			}
		case wire.Kill:
			if err := h.handleKill(peer); err != nil {
				return err
			}
			return nil
		default:
			h.log.Warnf("dispatch: ignoring unknown request variant %T", req)
		}
	}
}

func (h *Handler) handleOpen(peer string, req wire.Open) error {
	if prior, ok := h.table.Get(peer); ok {
		h.log.Warn("dispatch: preempting existing session for this peer")
		prior.Pump.Stop()
		_ = prior.Child.Kill()
		h.table.Remove(peer)
		// Reap the preempted child off the hot path; nothing requires
		// the new Open to wait for its PID to disappear from the
		// process table first.
		go prior.Child.Wait()
	}

	child, err := supervisor.Spawn(supervisor.Request{
		Path: req.Path,
		Args: req.Args,
		Env:  req.Env,
	}, h.inheritBaseEnv, h.targetUser)
	if err != nil {
		h.log.WithError(err).Warn("dispatch: spawn failed")
		return h.SendResponse(wire.Error{Msg: err.Error()})
	}

	if err := h.SendResponse(wire.Okay{}); err != nil {
		_ = child.Kill()
		return err
	}

	task := pump.Start(h.log, child, h, func() {
		h.table.Remove(peer)
		_ = h.conn.Close()
	})
	h.table.Put(peer, &session.Entry{Child: child, Pump: task})

	return nil
}

func (h *Handler) handleKill(peer string) error {
	entry, ok := h.table.Get(peer)
	if !ok {
		return h.SendResponse(wire.Error{Msg: "no process was running"})
	}

	entry.Pump.Stop()
	if err := entry.Child.Kill(); err != nil {
		h.log.WithError(err).Warn("dispatch: kill failed")
	}
	code := entry.Child.Wait()
	h.table.Remove(peer)

	return h.SendResponse(wire.Exit{Code: code})
}

// teardown runs when Serve returns for any reason: connection closed,
// transport error, or after a Kill. It cancels any still-live session so
// no child outlives its owning connection.
func (h *Handler) teardown(peer string) {
	if entry, ok := h.table.Get(peer); ok {
		entry.Pump.Stop()
		_ = entry.Child.Kill()
		h.table.Remove(peer)
		go entry.Child.Wait()
	}
	_ = h.conn.Close()
}
