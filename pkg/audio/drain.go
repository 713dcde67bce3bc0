package audio

// Drain discards whatever is buffered on ch, and anything sent later, from a
// new goroutine so that a producer abandoned by its consumer can still exit.
// The returned channel is closed once ch is closed.
func Drain[T any](ch <-chan T) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
		}
	}()
	return done
}
