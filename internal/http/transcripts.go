package http

import (
	"errors"
	"net/http"

	"nexus/internal/content"
	"nexus/internal/models"
	"nexus/internal/nexusdb"
)

// NewTranscriptHandler renders the signed in account's conversation with
// the id in the path as sanitised HTML.
func NewTranscriptHandler(store *nexusdb.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := store.RequireCurrentUser()
		if errors.Is(err, nexusdb.ErrNoIdentity) {
			http.Error(w, "Nobody is signed in", http.StatusUnauthorized)
			return
		}

		chats := store.Chats(me.ID)
		i := models.ChatIndex(chats, r.PathValue("id"))
		if i < 0 {
			http.NotFound(w, r)
			return
		}

		page, err := content.RenderTranscript(chats[i], me.Name)
		if err != nil {
			http.Error(w, "Failed to render transcript", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}
}
