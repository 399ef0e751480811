// Package progress carries coarse step reporting from long operations to
// their callers.
package progress

// Sink receives progress updates. current counts completed units out of
// total; message is a short human-readable phase description.
type Sink interface {
	Report(current, total int, message string)
}

// Func adapts a function to the Sink interface.
type Func func(current, total int, message string)

func (f Func) Report(current, total int, message string) {
	f(current, total, message)
}

// Discard drops all updates. Use it when no caller is listening.
var Discard Sink = Func(func(int, int, string) {})
