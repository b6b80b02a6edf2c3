package emailsvc

import (
	"fmt"

	"github.com/gammazero/workerpool"

	"github.com/cwarwicker/elbp/core"
)

const maxWorkers = 4

// fanOut sends every message on a bounded worker pool and waits for all of them. Failures are logged.
func fanOut(send func(*core.EmailMessage) error, logger core.Logger, messages []*core.EmailMessage) {
	wp := workerpool.New(maxWorkers)
	for _, msg := range messages {
		msg := msg
		wp.Submit(func() {
			if err := send(msg); err != nil {
				logger.Error(fmt.Sprintf("sending email %q: %v", msg.Subject, err), err)
			}
		})
	}
	wp.StopWait()
}
