package models

// Message types sent to a destination channel.
const (
	MessageResult = "result"
	MessageError  = "error"
)

// ResultRecord is one normalized catalog entry.
// Title is non-empty; Link and Poster are absolute URLs.
type ResultRecord struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Poster string `json:"poster"`
}

// Message is the unit of output delivered to a client session.
// Exactly one of Result or ErrorMessage is set, according to Type.
type Message struct {
	Type         string        `json:"type"`
	Result       *ResultRecord `json:"result,omitempty"`
	ErrorMessage string        `json:"message,omitempty"`
}

// NewResultMessage wraps a record into a "result" message.
func NewResultMessage(r ResultRecord) Message {
	return Message{Type: MessageResult, Result: &r}
}

// NewErrorMessage builds an "error" message.
func NewErrorMessage(msg string) Message {
	return Message{Type: MessageError, ErrorMessage: msg}
}
