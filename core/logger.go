package core

// Logger is any structured logger used by the app.
// expected args: msg | error, map[string]interface{}, an identity value understood by the implementation.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

type nopLogger struct{}

// NopLogger discards everything; handy for tests and optional dependencies.
var NopLogger Logger = nopLogger{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// Operator identifies the portal account a log line belongs to. Loggers may attach it to reports.
type Operator struct {
	Username string
	Semel    string
	Name     string
}

func (o Operator) ID() string {
	return o.Semel + "/" + o.Username
}
