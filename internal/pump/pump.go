// Package pump reads a supervised child's merged output line by line and
// emits wire frames for it, with preemptible cancellation generalized from
// the single-current-task manager the reference TUI used to cancel its own
// background jobs.
package pump

import (
	"bufio"

	"github.com/sirupsen/logrus"

	"github.com/go-psyncd/psyncd/internal/supervisor"
	"github.com/go-psyncd/psyncd/internal/wire"
)

// Sender is the subset of the connection the pump needs: one frame at a
// time, in order. Implementations must serialize calls themselves: the pump
// and the dispatcher send concurrently, and internal/transport.Conn guards
// both with one write lock.
type Sender interface {
	SendResponse(resp wire.Response) error
}

// Task owns one child's output pump. Only one Task is ever live for a given
// peer session; a second Open replaces it via Stop, exactly as the
// reference's TaskManager replaced its single current background task.
type Task struct {
	stop          chan struct{}
	notifyStopped chan struct{}
}

// Start launches the pump goroutine and returns immediately. onExit is
// invoked after the Exit frame is sent (successfully or not) so the caller
// (internal/dispatch) can remove the session entry and close the
// connection; it is never called if Stop preempts the pump first.
func Start(log *logrus.Entry, child *supervisor.Child, conn Sender, onExit func()) *Task {
	t := &Task{
		stop:          make(chan struct{}, 1),
		notifyStopped: make(chan struct{}),
	}

	go t.run(log, child, conn, onExit)

	return t
}

func (t *Task) run(log *logrus.Entry, child *supervisor.Child, conn Sender, onExit func()) {
	defer close(t.notifyStopped)

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(child.Output, 64*1024)
		for {
			// ReadString keeps the delimiter when it finds one and
			// returns the trailing partial chunk delimiter-free on
			// EOF, so a child that exits mid-line never gets a
			// newline byte it didn't actually write.
			chunk, err := reader.ReadString('\n')
			if len(chunk) > 0 {
				lines <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-t.stop:
			// Preempted: release our reference to the child without
			// sending anything further. The dispatcher already owns
			// killing the child; we just stop reading it.
			return
		case line, ok := <-lines:
			if !ok {
				if err := conn.SendResponse(wire.Exit{Code: child.Wait()}); err != nil {
					log.WithError(err).Debug("pump: connection closed before exit frame sent")
				}
				if onExit != nil {
					onExit()
				}
				return
			}
			if err := conn.SendResponse(wire.Log{Msg: line}); err != nil {
				log.WithError(err).Debug("pump: connection closed mid-stream, exiting cleanly")
				return
			}
		}
	}
}

// Stop cancels the pump and blocks until it has exited. Safe to call more
// than once or after the pump has already finished on its own.
func (t *Task) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
	<-t.notifyStopped
}
