package models

// Answer is a grounded answer together with the matches it was built from.
type Answer struct {
	Text    string           `json:"text"`
	Matches []RetrievedMatch `json:"matches"`
}

// SearchOutcome is what a first question in a new conversation produces.
type SearchOutcome struct {
	Title  string `json:"title"`
	Answer Answer `json:"answer"`
}

// Response is the envelope handed to upstream callers: either a payload or
// Error set with a human readable message.
type Response struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
}

func ErrorResponse(err error) Response {
	return Response{Error: true, Message: err.Error()}
}

// NewResponse builds the envelope from an answer and the error returned alongside it.
func NewResponse(answer Answer, err error) Response {
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Message: answer.Text}
}

func NewSearchResponse(outcome SearchOutcome, err error) Response {
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Message: outcome.Answer.Text, Title: outcome.Title}
}
