package api

import (
	"chat-live/errors"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// multipartMemory is the part of an upload kept in memory, the rest spills to temp files.
const multipartMemory = 1 << 20

type sendMessageRequest struct {
	Content string `json:"content"`
	ChatID  string `json:"chatId"`
}

type reactionRequest struct {
	Reaction string `json:"reaction" validate:"required"`
}

type editRequest struct {
	Content string `json:"content" validate:"required"`
}

type forwardRequest struct {
	TargetChatID string `json:"targetChatId" validate:"required"`
}

type deletedResponse struct {
	Message   string `json:"message"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.messages.SendMessage(caller(r), req.ChatID, req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// nextCursorHeader carries the cursor of the next older page when the history is limited.
const nextCursorHeader = "X-Next-Cursor"

// allMessages returns the history oldest first. With LIMIT_MESSAGES set it returns the newest page
// and the following pages are fetched with ?cursor= until the header is absent.
func (s *Server) allMessages(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := s.messages.AllMessages(mux.Vars(r)["chatId"], cursor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if next != nil {
		w.Header().Set(nextCursorHeader, *next)
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) searchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	messages, err := s.messages.SearchMessages(r.Context(), caller(r), q.Get("q"), q.Get("chatId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.fail(w, r, fmt.Errorf("%w: more than %d bytes", errors.ErrFileTooLarge, s.maxUploadBytes))
			return
		}
		s.fail(w, r, fmt.Errorf("%w: a multipart file is required", errors.ErrValidation))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: No file uploaded", errors.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	msg, err := s.messages.SendFile(caller(r), r.FormValue("chatId"), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.messages.DeleteMessage(caller(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{
		Message:   "Message deleted successfully",
		ChatID:    msg.ChatID(),
		MessageID: msg.ID,
	})
}

func (s *Server) toggleReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.messages.ToggleReaction(caller(r), mux.Vars(r)["id"], req.Reaction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.messages.EditMessage(caller(r), mux.Vars(r)["id"], req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) forwardMessage(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.messages.ForwardMessage(caller(r), mux.Vars(r)["id"], req.TargetChatID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) togglePin(w http.ResponseWriter, r *http.Request) {
	msg, err := s.messages.TogglePin(caller(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) markAsRead(w http.ResponseWriter, r *http.Request) {
	msg, err := s.messages.MarkAsRead(caller(r), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
