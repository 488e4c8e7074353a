package logger

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...any)          {}
func (Nop) Info(string, ...any)           {}
func (Nop) Warn(string, ...any)           {}
func (Nop) Error(string, ...any)          {}
func (n Nop) WithComponent(string) Logger { return n }

var _ Logger = Nop{}
