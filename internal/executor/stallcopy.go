// Stall-aware byte copy used by the LinkOrCopy copy-fallback path.
// Grounded on the teacher's pkg/engine/copy.go copyWithTimeout/
// progressReader: a copy that stops making progress for the stall timeout
// fails, and doLinkOrCopy records it as a CopyFailed action failure; the
// copy is not retried. The stall is acted on when the next Read is
// attempted; a Read that blocks is not interrupted.
package executor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const stallTimeout = 30 * time.Second

type progressTracker struct {
	sync.Mutex
	bytes     int64
	lastBytes int64
	lastTime  time.Time
}

type stallReader struct {
	io.Reader
	ctx  context.Context
	prog *progressTracker
}

func (r *stallReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, fmt.Errorf("copy stalled or cancelled: %w", r.ctx.Err())
	default:
	}
	n, err := r.Reader.Read(p)
	if n > 0 {
		r.prog.Lock()
		r.prog.bytes += int64(n)
		r.prog.lastBytes = r.prog.bytes
		r.prog.lastTime = time.Now()
		r.prog.Unlock()
	}
	return n, err
}

// copyWithStallDetection copies src to dst, aborting if no bytes are read
// for longer than stallTimeout.
func copyWithStallDetection(parent context.Context, src io.Reader, dst io.Writer) (int64, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	prog := &progressTracker{lastTime: time.Now()}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				prog.Lock()
				stalled := prog.bytes == prog.lastBytes && time.Since(prog.lastTime) > stallTimeout
				if prog.bytes > prog.lastBytes {
					prog.lastBytes = prog.bytes
					prog.lastTime = time.Now()
				}
				prog.Unlock()
				if stalled {
					cancel()
					return
				}
			}
		}
	}()

	reader := &stallReader{Reader: src, ctx: ctx, prog: prog}
	n, err := io.Copy(dst, reader)
	close(done)
	return n, err
}
