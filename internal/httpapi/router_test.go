package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/lexchat/internal/ai"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"github.com/suPer8Hu/lexchat/internal/chat"
	"github.com/suPer8Hu/lexchat/internal/config"
	"github.com/suPer8Hu/lexchat/internal/db"
	"github.com/suPer8Hu/lexchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"github.com/suPer8Hu/lexchat/internal/models"
	"github.com/suPer8Hu/lexchat/internal/rag"
	"github.com/suPer8Hu/lexchat/internal/store/memstore"
	"github.com/suPer8Hu/lexchat/internal/tokens"
	"github.com/suPer8Hu/lexchat/internal/usage"
	"gorm.io/gorm"
)

// cannedModel answers every prompt with the same text.
type cannedModel struct {
	reply string
	err   error
}

func (m *cannedModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *cannedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	r     *gin.Engine
	db    *gorm.DB
	model *cannedModel
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(gormsqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	cfg := config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour, CORSOrigins: []string{"*"}}
	log := logger.Nop()
	m := &cannedModel{reply: "Under Nigerian law, yes."}
	gen := ai.NewGenerator(m)

	files, err := attachment.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ex, err := attachment.NewExtractor(context.Background())
	require.NoError(t, err)

	store := memstore.New(24 * time.Hour)
	repo := chat.NewRepo(gdb)
	budget := chat.NewBudget(tokens.Estimator{}, 1500, gen)
	svc := chat.NewService(chat.Deps{
		Repo:        repo,
		Store:       store,
		Resolver:    chat.NewResolver(repo, store, gen, 5, log),
		Budget:      budget,
		Answerer:    rag.NewService(m, nil, log),
		Attachments: attachment.NewProcessor(attachment.NewRepo(gdb), files, ex, log),
		Usage:       usage.NewDBSink(usage.NewRepo(gdb)),
		Log:         log,
	})

	h := handlers.NewHandler(gdb, cfg, log, svc, files)
	return &testServer{r: NewRouter(h, cfg, log), db: gdb, model: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"email": email, "password": "correct-horse"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "Ada@Example.com")

	w, env := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", decode[map[string]any](t, env.Data)["email"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"email": "ada@example.com", "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ada@example.com", "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ada@example.com", "password": "wrong-horse"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatbot_AnonymousNeedsSession(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "Hello"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10003, env.Code)
}

func TestChatbot_AnonymousFlow(t *testing.T) {
	s := newTestServer(t)
	hdr := map[string]string{handlers.AnonymousSessionHeader: "S1"}

	w, env := s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "Hello"}, hdr)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[chat.Response](t, env.Data)
	assert.False(t, first.LimitReached)
	assert.Equal(t, "Under Nigerian law, yes.", first.Answer)
	assert.NotNil(t, first.Sources)

	w, env = s.do(t, http.MethodGet, "/api/v1/chatbot/anonymous/"+first.ChatID+"/messages", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, env.Data), 2)

	for i := 0; i < 4; i++ {
		w, _ = s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "More", "chat_id": first.ChatID}, hdr)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, env = s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "Sixth", "chat_id": first.ChatID}, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	limited := decode[chat.Response](t, env.Data)
	assert.True(t, limited.LimitReached)
	assert.Equal(t, "limit_reached", limited.ChatID)
	assert.Equal(t, "Message limit reached. Please login to continue.", limited.Answer)
	assert.Empty(t, limited.Sources)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/chatbot/anonymous", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodGet, "/api/v1/chatbot/anonymous/"+first.ChatID+"/messages", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]map[string]any](t, env.Data))

	// clearing the chats does not reset the limit
	w, env = s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "After clear"}, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[chat.Response](t, env.Data).LimitReached)
}

func TestChatbot_AuthenticatedFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "bola@example.com")

	w, env := s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "Can I sublet my flat?"}, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[chat.Response](t, env.Data)

	w, env = s.do(t, http.MethodGet, "/api/v1/chat/chats", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	chats := decode[[]chat.Chat](t, env.Data)
	require.Len(t, chats, 1)
	assert.Equal(t, resp.ChatID, chats[0].ID)

	w, env = s.do(t, http.MethodGet, "/api/v1/chat/chats/"+resp.ChatID+"/messages", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]chat.Message](t, env.Data), 2)

	// not shared yet
	w, _ = s.do(t, http.MethodGet, "/api/v1/chat/shared/"+resp.ChatID+"/messages", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/chat/chats/"+resp.ChatID+"/share", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodGet, "/api/v1/chat/shared/"+resp.ChatID+"/messages", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]chat.Message](t, env.Data), 2)

	w, env = s.do(t, http.MethodGet, "/api/v1/usage/total", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	total := decode[map[string]any](t, env.Data)
	assert.Greater(t, total["tokens_used"].(float64), float64(0))

	// another user cannot see it
	other := s.register(t, "chidi@example.com")
	w, env = s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "Hi", "chat_id": resp.ChatID}, bearer(other))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40004, env.Code)
}

func TestChatbot_GenerationFailureIsGeneric(t *testing.T) {
	s := newTestServer(t)
	hdr := map[string]string{handlers.AnonymousSessionHeader: "S1"}
	s.model.err = errors.New("upstream exploded: secret detail")

	w, env := s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{"message": "Hello"}, hdr)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to process chat message", env.Message)
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestAttachments_UploadChatAndServe(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "dayo@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="act.txt"`},
		"Content-Type":        {"text/plain"},
	})
	require.NoError(t, err)
	_, _ = part.Write([]byte("Section 5 exempts..."))
	require.NoError(t, mw.WriteField("file_type", "document"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	ref := decode[attachment.Ref](t, env.Data)
	assert.Equal(t, "act.txt", ref.FileName)
	assert.Equal(t, int64(len("Section 5 exempts...")), ref.FileSize)

	w, env = s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{
		"message":     "Does this apply?",
		"attachments": []attachment.Ref{ref},
	}, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[chat.Response](t, env.Data)

	var a attachment.Attachment
	require.NoError(t, s.db.First(&a, "id = ?", ref.ID).Error)
	require.NotNil(t, a.MessageID)
	var human chat.Message
	require.NoError(t, s.db.First(&human, "id = ?", *a.MessageID).Error)
	assert.Equal(t, resp.ChatID, human.ChatID)
	assert.Equal(t, chat.RoleHuman, human.Role)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/attachments/file/"+ref.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Section 5 exempts...", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))

	// the file is private to its uploader
	w, _ = s.do(t, http.MethodGet, "/api/v1/attachments/file/"+ref.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	other := s.register(t, "emeka@example.com")
	w, _ = s.do(t, http.MethodGet, "/api/v1/attachments/file/"+ref.ID, nil, bearer(other))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/chatbot/chat", gin.H{
		"message":     "What about this one?",
		"attachments": []attachment.Ref{ref},
	}, bearer(other))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stolen := decode[chat.Response](t, env.Data)
	w, env = s.do(t, http.MethodGet, "/api/v1/chat/chats/"+stolen.ChatID+"/messages", nil, bearer(other))
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]chat.Message](t, env.Data)
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[0].Attachments)
}

func TestAttachments_RejectsUnsupportedType(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="run.exe"`},
		"Content-Type":        {"application/x-msdownload"},
	})
	require.NoError(t, err)
	_, _ = part.Write([]byte("MZ"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboard_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.register(t, "admin@example.com")
	member := s.register(t, "member@example.com")
	require.NoError(t, s.db.Model(&models.User{}).Where("email = ?", "admin@example.com").Update("is_admin", true).Error)

	_, env := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(member))
	memberID := decode[models.User](t, env.Data).ID
	_, env = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(admin))
	adminID := decode[models.User](t, env.Data).ID

	repo := usage.NewRepo(s.db)
	sep := time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Store(ctx, usage.Event{UserID: memberID, TokensUsed: 100, Timestamp: sep}))
	require.NoError(t, repo.Store(ctx, usage.Event{UserID: memberID, TokensUsed: 300, Timestamp: sep.Add(time.Hour)}))
	require.NoError(t, repo.Store(ctx, usage.Event{UserID: adminID, TokensUsed: 40, Timestamp: sep}))

	for _, path := range []string{"monthly-average", "user-monthly-usage", "recent-token-usage"} {
		w, env := s.do(t, http.MethodGet, "/api/v1/dashboard/"+path, nil, bearer(member))
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, 40301, env.Code, path)
		w, _ = s.do(t, http.MethodGet, "/api/v1/dashboard/"+path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w, env := s.do(t, http.MethodGet, "/api/v1/dashboard/monthly-average", nil, bearer(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	avg := decode[[]usage.MonthlyAverage](t, env.Data)
	require.Len(t, avg, 1)
	assert.Equal(t, "2026-09", avg[0].Month)
	assert.InDelta(t, 440.0/3, avg[0].AvgTokens, 1e-9)

	// defaults to the admin's own usage
	w, env = s.do(t, http.MethodGet, "/api/v1/dashboard/user-monthly-usage", nil, bearer(admin))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []usage.MonthlyTotal{{Month: "2026-09", TotalTokens: 40}}, decode[[]usage.MonthlyTotal](t, env.Data))

	w, env = s.do(t, http.MethodGet, "/api/v1/dashboard/user-monthly-usage?user_id="+memberID, nil, bearer(admin))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []usage.MonthlyTotal{{Month: "2026-09", TotalTokens: 400}}, decode[[]usage.MonthlyTotal](t, env.Data))

	w, env = s.do(t, http.MethodGet, "/api/v1/dashboard/recent-token-usage?user_id="+memberID, nil, bearer(admin))
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[[]usage.Record](t, env.Data)
	require.Len(t, recent, 2)
	assert.Equal(t, 300, recent[0].TokensUsed)

	w, _ = s.do(t, http.MethodGet, "/api/v1/dashboard/recent-token-usage?user_id=not-a-uuid", nil, bearer(admin))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
