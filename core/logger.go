package core

// Logger is any leveled logger the services can report through.
// Implementations may inspect args for well-known types (eg. the signed-in
// student) to enrich reports.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
