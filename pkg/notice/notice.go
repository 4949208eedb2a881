// Package notice carries the one-shot user notifications returned alongside
// an operation result. The caller renders them; nothing is kept in session
// state between requests.
package notice

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a single message for the user.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func Success(msg string) *Notice { return &Notice{Level: LevelSuccess, Message: msg} }
func Info(msg string) *Notice    { return &Notice{Level: LevelInfo, Message: msg} }
func Warning(msg string) *Notice { return &Notice{Level: LevelWarning, Message: msg} }
func Error(msg string) *Notice   { return &Notice{Level: LevelError, Message: msg} }

// Response is the JSON envelope returned by every page and action endpoint.
type Response struct {
	Data       interface{}       `json:"data,omitempty"`
	Notice     *Notice           `json:"notice,omitempty"`
	RedirectTo string            `json:"redirect_to,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// Redirect builds a response telling the client where to go next.
func Redirect(to string, n *Notice) *Response {
	return &Response{RedirectTo: to, Notice: n}
}

// With builds a response carrying data and an optional notice.
func With(data interface{}, n *Notice) *Response {
	return &Response{Data: data, Notice: n}
}
