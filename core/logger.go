package core

// Logger is any leveled logger the app reports through. Implementations may
// forward errors to an external tracker in addition to the standard logger.
//
// Variadic args may carry an error, a map[string]interface{} of extras or the
// acting user; implementations decide what to do with each.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, err error, args ...interface{})
	Fatal(msg string, err error, args ...interface{})
}
