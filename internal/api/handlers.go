package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"collabboard/internal/event"
	"collabboard/internal/model"
	"collabboard/internal/store"
)

// requireMember enforces the workspace-membership authorization check on
// every mutation.
func (s *Server) requireMember(ctx context.Context, workspaceID uuid.UUID) error {
	member, err := s.directory.IsMember(ctx, callerID(ctx), workspaceID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}

func (s *Server) getBoard(ctx context.Context, boardID uuid.UUID) (model.Board, error) {
	var board model.Board
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		board, err = tx.GetBoard(ctx, boardID)
		return err
	})
	return board, err
}

func (s *Server) getList(ctx context.Context, listID uuid.UUID) (model.List, error) {
	var list model.List
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.GetList(ctx, listID)
		return err
	})
	return list, err
}

func (s *Server) getCard(ctx context.Context, cardID uuid.UUID) (model.Card, error) {
	var card model.Card
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		card, err = tx.GetCard(ctx, cardID)
		return err
	})
	return card, err
}

// listWorkspace resolves a list to the workspace owning its board.
func (s *Server) listWorkspace(ctx context.Context, listID uuid.UUID) (model.List, uuid.UUID, error) {
	list, err := s.getList(ctx, listID)
	if err != nil {
		return model.List{}, uuid.Nil, err
	}
	board, err := s.getBoard(ctx, list.BoardID)
	if err != nil {
		return model.List{}, uuid.Nil, err
	}
	return list, board.WorkspaceID, nil
}

func (s *Server) broadcast(ctx context.Context, r *http.Request, b event.Broadcast) {
	b.ActorID = callerID(ctx)
	b.Origin, b.ActionID = origin(r)
	if err := s.events.Broadcast(ctx, b); err != nil {
		// The mutation is already persisted; a failed fanout only costs
		// liveness, clients recover on their next snapshot fetch.
		slog.Warn("broadcast failed", "channel", b.Channel, "type", b.Type, "error", err)
	}
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	boardID, err := pathUUID(r, "boardID")
	if err != nil {
		http.Error(w, "bad board id", http.StatusBadRequest)
		return
	}
	board, err := s.getBoard(ctx, boardID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, board.WorkspaceID); err != nil {
		writeError(w, err)
		return
	}
	var snap store.BoardSnapshot
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		snap, err = tx.BoardState(ctx, boardID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createListRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	boardID, err := pathUUID(r, "boardID")
	if err != nil {
		http.Error(w, "bad board id", http.StatusBadRequest)
		return
	}
	var req createListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	board, err := s.getBoard(ctx, boardID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, board.WorkspaceID); err != nil {
		writeError(w, err)
		return
	}

	list := model.List{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     req.Title,
		UpdatedAt: time.Now(),
	}
	err = s.positions.Insert(ctx, model.ListScope(boardID), func(tx store.Tx, pos int) error {
		list.Position = pos
		return tx.InsertList(ctx, list)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: board.WorkspaceID,
		Channel:     model.ChannelList,
		Type:        model.EventCreated,
		EntityID:    list.ID,
		Data:        list,
	})
	writeJSON(w, http.StatusCreated, list)
}

type createCardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listID, err := pathUUID(r, "listID")
	if err != nil {
		http.Error(w, "bad list id", http.StatusBadRequest)
		return
	}
	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	_, workspaceID, err := s.listWorkspace(ctx, listID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, workspaceID); err != nil {
		writeError(w, err)
		return
	}

	card := model.Card{
		ID:          uuid.New(),
		ListID:      listID,
		Title:       req.Title,
		Description: req.Description,
		UpdatedAt:   time.Now(),
	}
	err = s.positions.Insert(ctx, model.CardScope(listID), func(tx store.Tx, pos int) error {
		card.Position = pos
		return tx.InsertCard(ctx, card)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: workspaceID,
		Channel:     model.ChannelCard,
		Type:        model.EventCreated,
		EntityID:    card.ID,
		Data:        card,
	})
	writeJSON(w, http.StatusCreated, card)
}

type reorderRequest struct {
	OrderedIDs []uuid.UUID `json:"orderedIds"`
}

func (s *Server) handleReorderLists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	boardID, err := pathUUID(r, "boardID")
	if err != nil {
		http.Error(w, "bad board id", http.StatusBadRequest)
		return
	}
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	board, err := s.getBoard(ctx, boardID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, board.WorkspaceID); err != nil {
		writeError(w, err)
		return
	}

	if err := s.positions.ReorderScope(ctx, model.ListScope(boardID), req.OrderedIDs); err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: board.WorkspaceID,
		Channel:     model.ChannelList,
		Type:        model.EventReordered,
		EntityID:    boardID,
		Data:        model.ReorderData{ScopeID: boardID, OrderedIDs: req.OrderedIDs},
	})
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleReorderCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listID, err := pathUUID(r, "listID")
	if err != nil {
		http.Error(w, "bad list id", http.StatusBadRequest)
		return
	}
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	_, workspaceID, err := s.listWorkspace(ctx, listID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, workspaceID); err != nil {
		writeError(w, err)
		return
	}

	if err := s.positions.ReorderScope(ctx, model.CardScope(listID), req.OrderedIDs); err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: workspaceID,
		Channel:     model.ChannelCard,
		Type:        model.EventReordered,
		EntityID:    listID,
		Data:        model.ReorderData{ScopeID: listID, OrderedIDs: req.OrderedIDs},
	})
	writeJSON(w, http.StatusOK, nil)
}

type moveCardRequest struct {
	TargetListID uuid.UUID `json:"targetListId"`
	Position     int       `json:"position"`
}

func (s *Server) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, err := pathUUID(r, "cardID")
	if err != nil {
		http.Error(w, "bad card id", http.StatusBadRequest)
		return
	}
	var req moveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	card, err := s.getCard(ctx, cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	_, workspaceID, err := s.listWorkspace(ctx, card.ListID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, workspaceID); err != nil {
		writeError(w, err)
		return
	}
	fromListID := card.ListID

	if req.TargetListID == card.ListID {
		err = s.positions.MoveWithinScope(ctx, model.CardScope(card.ListID), cardID, req.Position)
	} else {
		// The target list must live in a workspace the caller can mutate.
		_, targetWorkspace, terr := s.listWorkspace(ctx, req.TargetListID)
		if terr != nil {
			writeError(w, terr)
			return
		}
		if targetWorkspace != workspaceID {
			writeError(w, ErrForbidden)
			return
		}
		err = s.positions.MoveAcrossScopes(ctx, cardID,
			model.CardScope(card.ListID), model.CardScope(req.TargetListID), req.Position)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	moved, err := s.getCard(ctx, cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: workspaceID,
		Channel:     model.ChannelCard,
		Type:        model.EventMoved,
		EntityID:    cardID,
		Data:        model.MoveCardData{Card: moved, FromListID: fromListID},
	})
	writeJSON(w, http.StatusOK, moved)
}

type updateCardRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, err := pathUUID(r, "cardID")
	if err != nil {
		http.Error(w, "bad card id", http.StatusBadRequest)
		return
	}
	var req updateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	card, err := s.getCard(ctx, cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	_, workspaceID, err := s.listWorkspace(ctx, card.ListID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, workspaceID); err != nil {
		writeError(w, err)
		return
	}

	if req.Title != nil {
		card.Title = *req.Title
	}
	if req.Description != nil {
		card.Description = *req.Description
	}
	card.UpdatedAt = time.Now()
	// UpdateCard writes payload fields only, then the card is read back in
	// the same transaction so the broadcast carries its current placement
	// even if a move landed since the read above.
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.UpdateCard(ctx, card); err != nil {
			return err
		}
		var err error
		card, err = tx.GetCard(ctx, cardID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: workspaceID,
		Channel:     model.ChannelCard,
		Type:        model.EventUpdated,
		EntityID:    card.ID,
		Data:        card,
	})
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, err := pathUUID(r, "cardID")
	if err != nil {
		http.Error(w, "bad card id", http.StatusBadRequest)
		return
	}
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	_, workspaceID, err := s.listWorkspace(ctx, card.ListID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.requireMember(ctx, workspaceID); err != nil {
		writeError(w, err)
		return
	}

	// Siblings are not renumbered on delete: gaps are harmless for sort
	// order and later appends still use max+1.
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteCard(ctx, cardID)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.broadcast(ctx, r, event.Broadcast{
		WorkspaceID: workspaceID,
		Channel:     model.ChannelCard,
		Type:        model.EventDeleted,
		EntityID:    cardID,
		Data:        model.DeleteData{ID: cardID},
	})
	writeJSON(w, http.StatusNoContent, nil)
}
