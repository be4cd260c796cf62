package api

import (
	"bytes"
	"chat-live/errors"
	"encoding/json"
	"fmt"
	"net/http"
)

type accessChatRequest struct {
	UserID string `json:"userId"`
}

// groupUsers accepts the member list either as a JSON array or as a string holding one.
type groupUsers []string

func (g *groupUsers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		if encoded == "" {
			*g = nil
			return nil
		}
		data = []byte(encoded)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("%w: users must be a list of ids", errors.ErrValidation)
	}
	*g = ids
	return nil
}

type createGroupRequest struct {
	Name  string     `json:"name"`
	Users groupUsers `json:"users"`
}

type renameGroupRequest struct {
	ChatID   string `json:"chatId" validate:"required"`
	ChatName string `json:"chatName" validate:"required"`
}

type groupMemberRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

func (s *Server) accessChat(w http.ResponseWriter, r *http.Request) {
	var req accessChatRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	chat, err := s.chats.AccessChat(caller(r), req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) fetchChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.FetchChats(caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	chat, err := s.chats.CreateGroup(caller(r), req.Name, req.Users)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) renameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameGroupRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	chat, err := s.chats.RenameGroup(req.ChatID, req.ChatName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) addToGroup(w http.ResponseWriter, r *http.Request) {
	var req groupMemberRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	chat, err := s.chats.AddToGroup(req.ChatID, req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) removeFromGroup(w http.ResponseWriter, r *http.Request) {
	var req groupMemberRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	chat, err := s.chats.RemoveFromGroup(req.ChatID, req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}
