package logging

// NoOpLogger discards everything. Intended for tests.
type NoOpLogger struct{}

var _ Logger = (*NoOpLogger)(nil)

func NewNoOpLogger() Logger { return &NoOpLogger{} }

func (n *NoOpLogger) Debug(msg string, tags ...any) {}
func (n *NoOpLogger) Info(msg string, tags ...any)  {}
func (n *NoOpLogger) Warn(msg string, tags ...any)  {}
func (n *NoOpLogger) Error(msg string, tags ...any) {}
func (n *NoOpLogger) Fatal(msg string, tags ...any) {}

func (n *NoOpLogger) Debugf(template string, args ...interface{}) {}
func (n *NoOpLogger) Infof(template string, args ...interface{})  {}
func (n *NoOpLogger) Warnf(template string, args ...interface{})  {}
func (n *NoOpLogger) Errorf(template string, args ...interface{}) {}
func (n *NoOpLogger) Fatalf(template string, args ...interface{}) {}

func (n *NoOpLogger) With(tags ...any) Logger { return n }
