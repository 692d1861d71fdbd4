package http

import (
	"context"
	"net/http"
	"path"
)

// Handler factories shared by the task and negotiation endpoints. The
// resource id is always the {id} route parameter; agent-scoped lists use
// {agent}.

// handleGet serves one resource by id.
func handleGet[T any](get func(ctx context.Context, id string) (*T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := get(r.Context(), urlParam(r, "id"))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleCreate decodes a Req, creates the resource and answers 201 with a
// Location header built from the new id.
func handleCreate[Req any, Res any](create func(ctx context.Context, req *Req) (*Res, error), idOf func(*Res) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := create(r.Context(), &req)
		if err != nil {
			writeDomainError(w, err, "not found")
			return
		}
		w.Header().Set("Location", path.Join(r.URL.Path, idOf(res)))
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleAction decodes a Req and applies it to the resource named by id.
func handleAction[Req any, Res any](act func(ctx context.Context, id string, req Req) (*Res, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := act(r.Context(), urlParam(r, "id"), req)
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleAgentList serves a list scoped to {agent}, never as JSON null.
func handleAgentList[T any](list func(ctx context.Context, agent string) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := list(r.Context(), urlParam(r, "agent"))
		if err != nil {
			writeDomainError(w, err, "agent not found")
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}
