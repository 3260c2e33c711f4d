package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	chatService "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
)

// Problem is the user-facing description of a failed send.
type Problem struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

// maxDetail bounds how much of an upstream error body reaches the user.
const maxDetail = 300

// Describe maps an error from the chat service onto a status code and a
// message suitable for a banner or an error frame.
func Describe(err error) Problem {
	var sendErr *remote.SendError
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return Problem{Status: http.StatusBadRequest, Kind: "validation", Message: "Please enter a message."}
	case errors.Is(err, chatService.ErrSessionRequired):
		return Problem{Status: http.StatusBadRequest, Kind: "validation", Message: "A session id is required."}
	case errors.Is(err, chatService.ErrSendInProgress):
		return Problem{Status: http.StatusConflict, Kind: "in_progress", Message: "A message is already being sent. Please wait for the answer."}
	case errors.As(err, &sendErr):
		return describeSendError(sendErr)
	default:
		return Problem{Status: http.StatusInternalServerError, Kind: "internal", Message: "Something went wrong while sending your message."}
	}
}

func describeSendError(e *remote.SendError) Problem {
	p := Problem{Status: http.StatusBadGateway, Kind: e.Kind.String()}
	switch e.Kind {
	case remote.KindNetwork:
		p.Message = e.Hint
		if p.Message == "" {
			p.Message = remote.NetworkHint
		}
	case remote.KindHTTP:
		p.Message = fmt.Sprintf("The answering service returned status %d.", e.Status)
		if detail := truncate(strings.TrimSpace(e.Body), maxDetail); detail != "" {
			p.Message += " " + detail
		}
	default:
		p.Message = "The answering service sent a response that could not be read."
	}
	return p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
