package term

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// WatchWinch installs a SIGWINCH listener that sets the cooperative flag
// consulted by ConsumeWinch, and returns a function that uninstalls it and
// restores whatever was previously registered with signal.Notify for
// SIGWINCH. Grounded on pkg/sys/winsize_unix.go's sigWINCH constant.
func WatchWinch() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				SetWinch()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
