package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/cascade"
	"example.com/socialgraph/internal/graph"
	"example.com/socialgraph/internal/identity"
	"example.com/socialgraph/internal/middleware"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

const maxBodyLen = 1000

// --- HTTP Handlers ---

// signupHandler handles POST requests to register an account.
// Expects JSON body: {"username": "example", "password": "secret"}
// Returns JSON response: {"account_id": <id>, "username": "...", "token": "<jwt>"}
func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/signup", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	a, err := s.identity.CreateAccount(body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidUsername):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, identity.ErrDuplicateUsername):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logg.Error("http/signup", "Failed to create account", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	tokenStr, err := issueJWT(a.ID)
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	logg.Info("http/signup", "Account created (username anonymized)")
	writeJSON(w, map[string]any{
		"account_id": a.ID,
		"username":   a.Username,
		"token":      tokenStr,
	})
}

// loginHandler authenticates an account and returns a fresh JWT.
// Expects JSON body: {"username": "example", "password": "secret"}
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/login", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	a, err := s.identity.Authenticate(body.Username, body.Password)
	if err != nil {
		if errors.Is(err, identity.ErrWrongCredential) || errors.Is(err, store.ErrNotFound) {
			http.Error(w, "wrong username or password", http.StatusUnauthorized)
			return
		}
		logg.Error("http/login", "Failed to authenticate", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	tokenStr, err := issueJWT(a.ID)
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"account_id": a.ID,
		"username":   a.Username,
		"token":      tokenStr,
	})
}

// followHandler creates a follow edge from the caller to the named account.
// Expects JSON body: {"username": "target"}
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	accountID, target, ok := s.resolveEdgeRequest(w, r, "http/follow")
	if !ok {
		return
	}

	if err := s.graph.Follow(accountID, target.ID); err != nil {
		s.edgeError(w, "http/follow", err)
		return
	}

	logg.Info("http/follow", "Follow edge created (ids anonymized)")
	w.WriteHeader(http.StatusOK)
}

// unfollowHandler removes a follow edge. The self-follow edge is permanent.
// Expects JSON body: {"username": "target"}
func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	accountID, target, ok := s.resolveEdgeRequest(w, r, "http/unfollow")
	if !ok {
		return
	}

	if err := s.graph.Unfollow(accountID, target.ID); err != nil {
		if errors.Is(err, graph.ErrSelfUnfollow) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.edgeError(w, "http/unfollow", err)
		return
	}

	logg.Info("http/unfollow", "Follow edge removed (ids anonymized)")
	w.WriteHeader(http.StatusOK)
}

// likeHandler records a like edge for a content item.
// Expects JSON body: {"id": 7, "kind": "post"}
func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ref, ok := s.resolveLikeRequest(w, r, "http/like")
	if !ok {
		return
	}

	if err := s.graph.Like(accountID, ref); err != nil {
		s.edgeError(w, "http/like", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// unlikeHandler removes a like edge; removing an absent edge is a no-op.
// Expects JSON body: {"id": 7, "kind": "post"}
func (s *Server) unlikeHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ref, ok := s.resolveLikeRequest(w, r, "http/unlike")
	if !ok {
		return
	}

	if err := s.graph.Unlike(accountID, ref); err != nil {
		s.edgeError(w, "http/unlike", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// createPostHandler stores a new post, optionally quoting another item, and
// publishes the matching social event to Kafka.
// Expects JSON body: {"body": "...", "quote_id": 7, "quote_kind": "post"}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Body      string      `json:"body"`
		QuoteID   int64       `json:"quote_id"`
		QuoteKind models.Kind `json:"quote_kind"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/posts", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if len(body.Body) == 0 || len(body.Body) > maxBodyLen {
		http.Error(w, "post body must be 1-1000 characters", http.StatusBadRequest)
		return
	}

	var quote *models.ContentRef
	if body.QuoteID != 0 {
		if body.QuoteKind != models.KindPost && body.QuoteKind != models.KindComment {
			http.Error(w, "invalid quote kind", http.StatusBadRequest)
			return
		}
		ref := models.ContentRef{ID: body.QuoteID, Kind: body.QuoteKind}
		if _, err := s.store.GetContent(ref); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "quoted item not found", http.StatusNotFound)
				return
			}
			logg.Error("http/posts", "Failed to look up quoted item", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		quote = &ref
	}

	id, err := s.store.NextID("content")
	if err != nil {
		logg.Error("http/posts", "Failed to allocate content id", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	content := models.Content{
		ID:        id,
		Kind:      models.KindPost,
		CreatorID: accountID,
		Body:      body.Body,
		Quote:     quote,
		Created:   time.Now(),
	}

	evType := models.EventPostCreated
	if quote != nil {
		evType = models.EventQuoteCreated
	}
	ev := models.Event{
		ID:       uuid.NewString(),
		Type:     evType,
		ActorID:  accountID,
		Content:  content.Ref(),
		Target:   quote,
		Mentions: s.resolveMentions(body.Body),
		Created:  content.Created,
	}

	if err := broker.Publish(s.kafkaWriter, ev); err != nil {
		logg.Error("http/posts", "Failed to write Kafka message", err)
		http.Error(w, "failed to write Kafka message: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.store.PutContent(content); err != nil {
		logg.Error("http/posts", "Failed to save post to Cassandra", err)
		http.Error(w, "failed to save post: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if quote != nil {
		if err := s.graph.AttachQuote(content.Ref(), *quote); err != nil {
			logg.Error("http/posts", "Failed to attach quote back-reference", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	logg.Info("http/posts", "Post created (ids anonymized)")
	writeJSON(w, content)
}

// createCommentHandler stores a comment under an existing item and publishes
// the comment event.
// Expects JSON body: {"body": "...", "parent_id": 7, "parent_kind": "post"}
func (s *Server) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Body       string      `json:"body"`
		ParentID   int64       `json:"parent_id"`
		ParentKind models.Kind `json:"parent_kind"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/comments", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if len(body.Body) == 0 || len(body.Body) > maxBodyLen {
		http.Error(w, "comment body must be 1-1000 characters", http.StatusBadRequest)
		return
	}
	if body.ParentKind != models.KindPost && body.ParentKind != models.KindComment {
		http.Error(w, "invalid parent kind", http.StatusBadRequest)
		return
	}

	parent := models.ContentRef{ID: body.ParentID, Kind: body.ParentKind}
	if _, err := s.store.GetContent(parent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "parent item not found", http.StatusNotFound)
			return
		}
		logg.Error("http/comments", "Failed to look up parent item", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := s.store.NextID("content")
	if err != nil {
		logg.Error("http/comments", "Failed to allocate content id", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	content := models.Content{
		ID:        id,
		Kind:      models.KindComment,
		CreatorID: accountID,
		Body:      body.Body,
		Parent:    &parent,
		Created:   time.Now(),
	}

	ev := models.Event{
		ID:       uuid.NewString(),
		Type:     models.EventCommentCreated,
		ActorID:  accountID,
		Content:  content.Ref(),
		Target:   &parent,
		Mentions: s.resolveMentions(body.Body),
		Created:  content.Created,
	}

	if err := broker.Publish(s.kafkaWriter, ev); err != nil {
		logg.Error("http/comments", "Failed to write Kafka message", err)
		http.Error(w, "failed to write Kafka message: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.store.PutContent(content); err != nil {
		logg.Error("http/comments", "Failed to save comment to Cassandra", err)
		http.Error(w, "failed to save comment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.store.AppendComment(parent, content.ID); err != nil {
		logg.Error("http/comments", "Failed to attach comment to parent", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logg.Info("http/comments", "Comment created (ids anonymized)")
	writeJSON(w, content)
}

// settingsHandler updates the caller's profile settings.
func (s *Server) settingsHandler(w http.ResponseWriter, r *http.Request) {
	var set identity.Settings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		logg.Error("http/settings", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.identity.UpdateSettings(accountID, set); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidSettings):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "account not found", http.StatusNotFound)
		default:
			logg.Error("http/settings", "Failed to update settings", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// notificationsHandler lists the caller's notification inbox.
func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	notifs, err := s.store.NotificationsFor(accountID)
	if err != nil {
		logg.Error("http/notifications", "Failed to list notifications", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if notifs == nil {
		notifs = []models.Notification{}
	}
	writeJSON(w, notifs)
}

// deleteAccountHandler runs the full deletion cascade. Without a target the
// caller deletes their own account; deleting someone else needs admin rights
// or the owner account.
// Expects JSON body: {} or {"target_id": 7} or {"username": "target"}
func (s *Server) deleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		TargetID int64  `json:"target_id"`
		Username string `json:"username"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	targetID := accountID
	if body.TargetID != 0 {
		targetID = body.TargetID
	} else if body.Username != "" {
		target, err := s.identity.ByUsername(body.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "account not found", http.StatusNotFound)
				return
			}
			logg.Error("http/delete", "Failed to resolve target account", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		targetID = target.ID
	}

	if err := s.cascade.DeleteAccount(accountID, targetID); err != nil {
		switch {
		case errors.Is(err, cascade.ErrUnauthorized):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "account not found", http.StatusNotFound)
		default:
			logg.Error("http/delete", "Cascade failed", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	logg.Info("http/delete", "Account deleted (ids anonymized)")
	w.WriteHeader(http.StatusOK)
}

// --- Helpers ---

// resolveEdgeRequest decodes a {"username"} body and resolves both endpoints
// of a follow edge request.
func (s *Server) resolveEdgeRequest(w http.ResponseWriter, r *http.Request, where string) (int64, models.Account, bool) {
	type req struct {
		Username string `json:"username"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error(where, "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return 0, models.Account{}, false
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, models.Account{}, false
	}

	target, err := s.identity.ByUsername(body.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return 0, models.Account{}, false
		}
		logg.Error(where, "Failed to resolve target account", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return 0, models.Account{}, false
	}

	return accountID, target, true
}

// resolveLikeRequest decodes a content reference body for like/unlike.
func (s *Server) resolveLikeRequest(w http.ResponseWriter, r *http.Request, where string) (int64, models.ContentRef, bool) {
	type req struct {
		ID   int64       `json:"id"`
		Kind models.Kind `json:"kind"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error(where, "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return 0, models.ContentRef{}, false
	}
	defer r.Body.Close()

	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, models.ContentRef{}, false
	}

	if body.Kind != models.KindPost && body.Kind != models.KindComment {
		http.Error(w, "invalid content kind", http.StatusBadRequest)
		return 0, models.ContentRef{}, false
	}

	return accountID, models.ContentRef{ID: body.ID, Kind: body.Kind}, true
}

// edgeError maps graph/store errors to HTTP statuses.
func (s *Server) edgeError(w http.ResponseWriter, where string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	logg.Error(where, "Edge operation failed", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// resolveMentions extracts @username tokens from a body and resolves them to
// account ids. Unknown usernames are ignored.
func (s *Server) resolveMentions(body string) []int64 {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789_-"

	var ids []int64
	seen := map[int64]bool{}

	lower := strings.ToLower(body)
	for i := 0; i < len(lower); i++ {
		if lower[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(lower) && strings.IndexByte(alphabet, lower[j]) >= 0 {
			j++
		}
		if j == i+1 {
			continue
		}
		username := lower[i+1 : j]
		i = j - 1

		a, err := s.identity.ByUsername(username)
		if err != nil || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		ids = append(ids, a.ID)
	}
	return ids
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// issueJWT signs a 24h token carrying the account id as a string claim.
func issueJWT(accountID int64) (string, error) {
	secret := []byte(os.Getenv("JWT_SECRET"))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": strconv.FormatInt(accountID, 10),
		"exp":        time.Now().Add(time.Hour * 24).Unix(),
	})
	return token.SignedString(secret)
}

// clientIP extracts the rate-limit origin for a request. The first entry of
// X-Forwarded-For wins when a proxy set it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
