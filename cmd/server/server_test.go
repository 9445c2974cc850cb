package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/kafka-go"

	"example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/ratelimit"
	"example.com/socialgraph/internal/store"
)

//
// --- Helpers ---
//

// generate JWT token for test account
func makeTestJWT(accountID int64) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": strconv.FormatInt(accountID, 10),
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return tokenStr
}

// create HTTP request with JWT token
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		defer resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret")

	mockStore := store.NewMock()
	limiter := ratelimit.New(ratelimit.DefaultRules(time.Minute))
	s := newServer(mockStore, &broker.MockKafka{Store: mockStore}, limiter, 24, 1)

	return s, httptest.NewServer(s.routes())
}

// helper: register an account over HTTP, returns id and JWT
func signupHelper(t *testing.T, ts *httptest.Server, username string) (int64, string) {
	t.Helper()

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/signup",
		map[string]any{"username": username, "password": username + "-pass"}, "", http.StatusOK)
	defer resp.Body.Close()

	var res struct {
		AccountID int64  `json:"account_id"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.AccountID == 0 || res.Token == "" {
		t.Fatalf("incomplete signup response: %+v", res)
	}
	return res.AccountID, res.Token
}

func containsID(ids []int64, want int64) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

//
// --- Tests ---
//

func TestSignupAndLogin(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	id, _ := signupHelper(t, ts, "alice")
	if id == 0 {
		t.Fatalf("expected non-zero account ID")
	}

	// correct credential logs in
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]any{"username": "alice", "password": "alice-pass"}, "", http.StatusOK)
	resp.Body.Close()

	// wrong credential is rejected
	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]any{"username": "alice", "password": "nope"}, "", http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSignup_DuplicateUsername(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	signupHelper(t, ts, "alice")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/signup",
		map[string]any{"username": "Alice", "password": "other"}, "", http.StatusConflict)
	resp.Body.Close()
}

func TestSignup_InvalidUsername(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/signup",
		map[string]any{"username": "no!good", "password": "pass"}, "", http.StatusBadRequest)
	resp.Body.Close()
}

// full flow: alice follows bob, shows up in bob's followers, then unfollows
func TestFollowUnfollowFlow(t *testing.T) {
	s, ts := setupTestServer(t)
	defer ts.Close()

	aliceID, aliceToken := signupHelper(t, ts, "alice")
	bobID, _ := signupHelper(t, ts, "bob")

	// Alice -> follow Bob
	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow",
		map[string]any{"username": "bob"}, aliceToken, http.StatusOK).Body.Close()

	followers, err := s.store.Followers(bobID)
	if err != nil {
		t.Fatalf("Followers failed: %v", err)
	}
	if !containsID(followers, aliceID) {
		t.Fatalf("expected alice in bob's followers, got %v", followers)
	}

	// repeat is a no-op
	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow",
		map[string]any{"username": "bob"}, aliceToken, http.StatusOK).Body.Close()

	// Alice -> unfollow Bob
	sendJSONRequest(t, http.MethodPost, ts.URL+"/unfollow",
		map[string]any{"username": "bob"}, aliceToken, http.StatusOK).Body.Close()

	followers, _ = s.store.Followers(bobID)
	if containsID(followers, aliceID) {
		t.Fatalf("expected alice gone from bob's followers, got %v", followers)
	}

	// the self-follow edge cannot be removed
	sendJSONRequest(t, http.MethodPost, ts.URL+"/unfollow",
		map[string]any{"username": "alice"}, aliceToken, http.StatusBadRequest).Body.Close()
}

func TestFollow_UnknownTarget(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	_, aliceToken := signupHelper(t, ts, "alice")

	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow",
		map[string]any{"username": "ghost"}, aliceToken, http.StatusNotFound).Body.Close()
}

// post with a mention, comment on it, verify notifications land
func TestPostCommentNotificationFlow(t *testing.T) {
	s, ts := setupTestServer(t)
	defer ts.Close()

	aliceID, aliceToken := signupHelper(t, ts, "alice")
	bobID, bobToken := signupHelper(t, ts, "bob")

	// Bob posts, pinging Alice
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/posts",
		map[string]any{"body": "hello @alice"}, bobToken, http.StatusOK)
	var post models.Content
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		t.Fatalf("decode post failed: %v", err)
	}
	resp.Body.Close()
	if post.ID == 0 || post.Kind != models.KindPost {
		t.Fatalf("unexpected post: %+v", post)
	}

	notifs, _ := s.store.NotificationsFor(aliceID)
	if len(notifs) != 1 || notifs[0].EventType != models.NotifPingPost {
		t.Fatalf("expected ping_p for alice, got %+v", notifs)
	}

	// Alice comments on Bob's post
	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/comments",
		map[string]any{"body": "hi bob", "parent_id": post.ID, "parent_kind": "post"}, aliceToken, http.StatusOK)
	var comment models.Content
	if err := json.NewDecoder(resp.Body).Decode(&comment); err != nil {
		t.Fatalf("decode comment failed: %v", err)
	}
	resp.Body.Close()

	children, _ := s.store.Comments(post.Ref())
	if !containsID(children, comment.ID) {
		t.Fatalf("expected comment attached to post, got %v", children)
	}

	// Bob reads his inbox over HTTP
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+makeTestJWT(bobID))
	nresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("notifications request failed: %v", err)
	}
	defer nresp.Body.Close()

	var inbox []models.Notification
	if err := json.NewDecoder(nresp.Body).Decode(&inbox); err != nil {
		t.Fatalf("decode inbox failed: %v", err)
	}
	if len(inbox) != 1 || inbox[0].EventType != models.NotifComment {
		t.Fatalf("expected comment notification for bob, got %+v", inbox)
	}
}

func TestQuotePost(t *testing.T) {
	s, ts := setupTestServer(t)
	defer ts.Close()

	_, aliceToken := signupHelper(t, ts, "alice")
	_, bobToken := signupHelper(t, ts, "bob")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/posts",
		map[string]any{"body": "original"}, bobToken, http.StatusOK)
	var original models.Content
	json.NewDecoder(resp.Body).Decode(&original)
	resp.Body.Close()

	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/posts",
		map[string]any{"body": "look at this", "quote_id": original.ID, "quote_kind": "post"}, aliceToken, http.StatusOK)
	var quoting models.Content
	json.NewDecoder(resp.Body).Decode(&quoting)
	resp.Body.Close()

	quotes, err := s.store.Quotes(original.Ref())
	if err != nil {
		t.Fatalf("Quotes failed: %v", err)
	}
	if len(quotes) != 1 || quotes[0].ID != quoting.ID {
		t.Fatalf("expected quote back-reference, got %+v", quotes)
	}

	// quoting a missing item fails up front
	sendJSONRequest(t, http.MethodPost, ts.URL+"/posts",
		map[string]any{"body": "x", "quote_id": int64(99999), "quote_kind": "post"}, aliceToken, http.StatusNotFound).Body.Close()
}

func TestLikeUnlike(t *testing.T) {
	s, ts := setupTestServer(t)
	defer ts.Close()

	aliceID, aliceToken := signupHelper(t, ts, "alice")
	_, bobToken := signupHelper(t, ts, "bob")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/posts",
		map[string]any{"body": "like me"}, bobToken, http.StatusOK)
	var post models.Content
	json.NewDecoder(resp.Body).Decode(&post)
	resp.Body.Close()

	sendJSONRequest(t, http.MethodPost, ts.URL+"/like",
		map[string]any{"id": post.ID, "kind": "post"}, aliceToken, http.StatusOK).Body.Close()

	likers, _ := s.store.Likers(post.Ref())
	if !containsID(likers, aliceID) {
		t.Fatalf("expected alice in likers, got %v", likers)
	}

	sendJSONRequest(t, http.MethodPost, ts.URL+"/unlike",
		map[string]any{"id": post.ID, "kind": "post"}, aliceToken, http.StatusOK).Body.Close()

	likers, _ = s.store.Likers(post.Ref())
	if containsID(likers, aliceID) {
		t.Fatalf("expected alice gone from likers, got %v", likers)
	}
}

func TestSettingsUpdate(t *testing.T) {
	s, ts := setupTestServer(t)
	defer ts.Close()

	aliceID, aliceToken := signupHelper(t, ts, "alice")

	sendJSONRequest(t, http.MethodPost, ts.URL+"/settings", map[string]any{
		"display_name": "Alice",
		"bio":          "hi",
		"theme":        "black",
		"color":        "#112233",
		"color_two":    "#445566",
		"gradient":     true,
	}, aliceToken, http.StatusOK).Body.Close()

	a, _ := s.store.GetAccount(aliceID)
	if a.DisplayName != "Alice" || a.Theme != "black" || !a.Gradient {
		t.Fatalf("settings not applied: %+v", a)
	}

	// bad theme is rejected
	sendJSONRequest(t, http.MethodPost, ts.URL+"/settings", map[string]any{
		"display_name": "Alice",
		"theme":        "neon",
		"color":        "#112233",
		"color_two":    "#445566",
	}, aliceToken, http.StatusBadRequest).Body.Close()
}

// cascade over HTTP: deleting bob leaves no trace of him anywhere
func TestDeleteAccountCascade(t *testing.T) {
	s, ts := setupTestServer(t)
	defer ts.Close()

	aliceID, aliceToken := signupHelper(t, ts, "alice")
	bobID, bobToken := signupHelper(t, ts, "bob")
	_, malloryToken := signupHelper(t, ts, "mallory")

	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow",
		map[string]any{"username": "bob"}, aliceToken, http.StatusOK).Body.Close()

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/posts",
		map[string]any{"body": "soon gone"}, bobToken, http.StatusOK)
	var post models.Content
	json.NewDecoder(resp.Body).Decode(&post)
	resp.Body.Close()

	sendJSONRequest(t, http.MethodPost, ts.URL+"/like",
		map[string]any{"id": post.ID, "kind": "post"}, aliceToken, http.StatusOK).Body.Close()

	// Bob deletes himself
	sendJSONRequest(t, http.MethodPost, ts.URL+"/account/delete",
		map[string]any{}, bobToken, http.StatusOK).Body.Close()

	if _, err := s.store.GetAccount(bobID); err != store.ErrNotFound {
		t.Fatalf("expected bob gone, got %v", err)
	}
	if _, err := s.store.GetContent(post.Ref()); err != store.ErrNotFound {
		t.Fatalf("expected bob's post gone, got %v", err)
	}
	following, _ := s.store.Following(aliceID)
	if containsID(following, bobID) {
		t.Fatalf("expected bob gone from alice's following, got %v", following)
	}
	likes, _ := s.store.Likes(aliceID)
	for _, ref := range likes {
		if ref.ID == post.ID {
			t.Fatalf("expected alice's like on bob's post gone, got %v", likes)
		}
	}

	// deleting someone else without rights is forbidden
	sendJSONRequest(t, http.MethodPost, ts.URL+"/account/delete",
		map[string]any{"username": "alice"}, malloryToken, http.StatusForbidden).Body.Close()
}

// repeated failing signups from one origin lock it out
func TestSignupRateLimited(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	// failed signup carries a heavy cost: one failure saturates the window
	sendJSONRequest(t, http.MethodPost, ts.URL+"/signup",
		map[string]any{"username": "bad name!", "password": "x"}, "", http.StatusBadRequest).Body.Close()

	sendJSONRequest(t, http.MethodPost, ts.URL+"/signup",
		map[string]any{"username": "fine", "password": "x"}, "", http.StatusTooManyRequests).Body.Close()
}

// every mutating endpoint is gated: follows past the default threshold get 429
func TestFollowRateLimited(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	_, aliceToken := signupHelper(t, ts, "alice")
	signupHelper(t, ts, "bob")

	// the default rule admits 30 attempts per window from one origin
	for i := 0; i < 30; i++ {
		sendJSONRequest(t, http.MethodPost, ts.URL+"/follow",
			map[string]any{"username": "bob"}, aliceToken, http.StatusOK).Body.Close()
	}

	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow",
		map[string]any{"username": "bob"}, aliceToken, http.StatusTooManyRequests).Body.Close()

	// other actions from the same origin are tracked independently
	sendJSONRequest(t, http.MethodPost, ts.URL+"/unfollow",
		map[string]any{"username": "bob"}, aliceToken, http.StatusOK).Body.Close()
}

// invalid JSON for follow
func TestFollow_InvalidJSON(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	token := makeTestJWT(1)
	body := []byte(`{"username":1}`)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/follow", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// missing token is rejected by the middleware
func TestProtectedEndpoint_NoToken(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/posts", "application/json",
		bytes.NewBufferString(`{"body":"x"}`))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

// Kafka write error
func TestKafkaWriteError(t *testing.T) {
	s, _ := setupTestServer(t)
	s.kafkaWriter = &broker.MockKafkaFail{}

	if err := s.kafkaWriter.WriteMessages(kafka.Message{Key: []byte("k"), Value: []byte("v")}); err == nil {
		t.Fatalf("expected error from MockKafkaFail")
	}
}

// Store failure surfaces as an error
func TestStoreCreateAccountFail(t *testing.T) {
	s, _ := setupTestServer(t)
	s.store = &store.MockStoreFail{}

	if _, err := s.store.CreateAccount(models.Account{ID: 1, Username: "alice"}); err == nil {
		t.Fatalf("expected error from MockStoreFail")
	}
}
