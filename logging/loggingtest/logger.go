package loggingtest

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zalando/scriptroute/logging"
)

type logSubscription struct {
	exp      string
	n        int
	response chan<- struct{}
}

type countRequest struct {
	exp      string
	response chan<- int
}

type logWatch struct {
	entries []string
	reqs    []*logSubscription
}

// TestLogger records the logged entries, and allows waiting for them.
// It implements logging.Logger.
type TestLogger struct {
	save   chan string
	notify chan<- logSubscription
	count  chan<- countRequest
	clear  chan struct{}
	quit   chan struct{}
}

var ErrWaitTimeout = errors.New("timeout")

var _ logging.Logger = &TestLogger{}

func (lw *logWatch) save(e string) {
	lw.entries = append(lw.entries, e)
	for i := len(lw.reqs) - 1; i >= 0; i-- {
		req := lw.reqs[i]
		if strings.Contains(e, req.exp) {
			req.n--
			if req.n <= 0 {
				close(req.response)
				lw.reqs = append(lw.reqs[:i], lw.reqs[i+1:]...)
			}
		}
	}
}

func (lw *logWatch) notify(req logSubscription) {
	for i := len(lw.entries) - 1; i >= 0; i-- {
		if strings.Contains(lw.entries[i], req.exp) {
			req.n--
			if req.n == 0 {
				break
			}
		}
	}

	if req.n <= 0 {
		close(req.response)
	} else {
		lw.reqs = append(lw.reqs, &req)
	}
}

func (lw *logWatch) count(exp string) int {
	var n int
	for _, e := range lw.entries {
		if strings.Contains(e, exp) {
			n++
		}
	}

	return n
}

func (lw *logWatch) clear() {
	lw.entries = nil
	lw.reqs = nil
}

func New() *TestLogger {
	lw := &logWatch{}
	save := make(chan string)
	notify := make(chan logSubscription)
	count := make(chan countRequest)
	clear := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case e := <-save:
				lw.save(e)
			case req := <-notify:
				lw.notify(req)
			case req := <-count:
				req.response <- lw.count(req.exp)
			case <-clear:
				lw.clear()
			case <-quit:
				return
			}
		}
	}()

	return &TestLogger{save, notify, count, clear, quit}
}

func (tl *TestLogger) send(e string) {
	select {
	case tl.save <- e:
	case <-tl.quit:
	}
}

func (tl *TestLogger) logf(f string, a ...interface{}) {
	log.Printf(f, a...)
	tl.send(fmt.Sprintf(f, a...))
}

func (tl *TestLogger) log(a ...interface{}) {
	log.Println(a...)
	tl.send(fmt.Sprint(a...))
}

func (tl *TestLogger) WaitForN(exp string, n int, to time.Duration) error {
	found := make(chan struct{}, 1)
	tl.notify <- logSubscription{exp, n, found}

	select {
	case <-found:
		return nil
	case <-time.After(to):
		return ErrWaitTimeout
	}
}

func (tl *TestLogger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

// Count returns the number of recorded entries containing exp.
func (tl *TestLogger) Count(exp string) int {
	response := make(chan int, 1)
	tl.count <- countRequest{exp, response}
	return <-response
}

func (tl *TestLogger) Reset() {
	tl.clear <- struct{}{}
}

// Close stops recording. Logging after Close doesn't block.
func (tl *TestLogger) Close() {
	close(tl.quit)
}

func (tl *TestLogger) Error(a ...interface{})            { tl.log(a...) }
func (tl *TestLogger) Errorf(f string, a ...interface{}) { tl.logf(f, a...) }
func (tl *TestLogger) Warn(a ...interface{})             { tl.log(a...) }
func (tl *TestLogger) Warnf(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *TestLogger) Info(a ...interface{})             { tl.log(a...) }
func (tl *TestLogger) Infof(f string, a ...interface{})  { tl.logf(f, a...) }
func (tl *TestLogger) Debug(a ...interface{})            { tl.log(a...) }
func (tl *TestLogger) Debugf(f string, a ...interface{}) { tl.logf(f, a...) }

func (tl *TestLogger) WithFields(map[string]interface{}) logging.Logger { return tl }
