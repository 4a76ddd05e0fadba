package core

type (
	// Logger is any service that can log messages.
	// Expected args: error, map[string]interface{}, Person
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Person identifies the authenticated caller a log entry relates to.
	Person struct {
		ID       string
		Username string
		Email    string
	}
)
