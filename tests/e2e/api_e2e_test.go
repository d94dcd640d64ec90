package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/draftforge/internal/db"
	"github.com/draftforge/internal/handler"
	"github.com/draftforge/internal/router"
	"github.com/draftforge/internal/service"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler http.Handler
	client  *localClient
	baseURL string
	user    db.User
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler) *localClient {
	jar, _ := cookiejar.New(nil)
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

type stubProvider struct{}

func (stubProvider) Complete(_ context.Context, req service.CompletionRequest) (service.CompletionResult, error) {
	// 大纲调用的系统提示词要求只输出 JSON
	if strings.Contains(req.SystemPrompt, "JSON") {
		return service.CompletionResult{Content: `{"outline":[{"title":"引言","wordCount":300},{"title":"正文","wordCount":800}]}`}, nil
	}
	return service.CompletionResult{Content: "# 端到端\n\n这是 由 桩 模型 生成 的 完整 正文。\n\n## 小节\n\n更多 内容。"}, nil
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:e2e-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.User{},
		&db.GenerationRecord{},
		&db.ProviderCredential{},
		&db.GenerationStatistic{},
		&db.GenerationVisit{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	db.DB = gdb

	hashed, err := bcrypt.GenerateFromPassword([]byte("e2e-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := db.User{Username: "admin", Password: string(hashed)}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	api := handler.NewAPI(gdb, handler.APIOptions{
		UploadDir:         t.TempDir(),
		UploadURL:         "/static/uploads",
		GenerationWorkers: 1,
	})
	t.Cleanup(api.Close)

	factory := func(service.Credentials) (service.ProviderClient, error) {
		return stubProvider{}, nil
	}
	api.Generations().SetProviderFactory(factory)
	api.Outlines().SetProviderFactory(factory)
	api.Sections().SetProviderFactory(factory)

	engine := router.SetupRouter("test-session-secret", api)

	return &e2eSuite{
		handler: engine,
		client:  newLocalClient(engine),
		baseURL: "http://example.test",
		user:    user,
	}
}

func (s *e2eSuite) request(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	payload, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, payload
}

func (s *e2eSuite) login(t *testing.T) {
	t.Helper()
	resp, body := s.request(t, http.MethodPost, "/admin/login", map[string]string{
		"username": "admin",
		"password": "e2e-secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d %s", resp.StatusCode, body)
	}
}

func TestE2E_GenerationPipeline(t *testing.T) {
	suite := newE2ESuite(t)

	// 未登录的 API 访问应被拒绝
	resp, _ := suite.request(t, http.MethodGet, "/admin/api/generations", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous access should be 401, got %d", resp.StatusCode)
	}

	suite.login(t)

	// 未配置凭据时创建任务应返回 412
	resp, _ = suite.request(t, http.MethodPost, "/admin/api/generations", map[string]interface{}{
		"topic": "提前创建",
	})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("creation without credentials should be 412, got %d", resp.StatusCode)
	}

	// 配置模型平台凭据
	resp, body := suite.request(t, http.MethodPut, "/admin/api/settings/ai", map[string]string{
		"provider":   "openai",
		"apiKey":     "sk-e2e-key",
		"modelName":  "gpt-4o-mini",
		"creativity": "balanced",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save settings failed: %d %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "sk-e2e-key") {
		t.Error("settings response must mask the API key")
	}

	// 竞品调研：无搜索 Key 时使用确定性合成数据
	resp, body = suite.request(t, http.MethodPost, "/admin/api/research", map[string]string{
		"topic": "远程协作",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("research failed: %d %s", resp.StatusCode, body)
	}
	var research struct {
		Competitors []service.CompetitorSummary `json:"competitors"`
	}
	if err := json.Unmarshal(body, &research); err != nil {
		t.Fatalf("decode research: %v", err)
	}
	if len(research.Competitors) != 5 {
		t.Fatalf("expected 5 synthetic competitors, got %d", len(research.Competitors))
	}

	// 大纲生成与重排
	resp, body = suite.request(t, http.MethodPost, "/admin/api/outline", map[string]interface{}{
		"topic":       "远程协作",
		"competitors": research.Competitors,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("outline failed: %d %s", resp.StatusCode, body)
	}
	var outline service.OutlineResult
	if err := json.Unmarshal(body, &outline); err != nil {
		t.Fatalf("decode outline: %v", err)
	}
	if len(outline.Outline) != 2 {
		t.Fatalf("expected 2 outline sections, got %d", len(outline.Outline))
	}

	resp, body = suite.request(t, http.MethodPost, "/admin/api/outline/reorder", map[string]interface{}{
		"sections":  outline.Outline,
		"index":     1,
		"direction": "up",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder failed: %d %s", resp.StatusCode, body)
	}

	// 创建生成任务并轮询至完成
	resp, body = suite.request(t, http.MethodPost, "/admin/api/generations", map[string]interface{}{
		"topic":       "远程协作完全指南",
		"keywords":    []string{"协作", "远程"},
		"targetWords": 800,
		"seoOptimize": true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create generation failed: %d %s", resp.StatusCode, body)
	}
	var created struct {
		RecordID uint `json:"recordId"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	statusPath := fmt.Sprintf("/admin/api/generations/%d/status", created.RecordID)
	var status struct {
		Status    string `json:"status"`
		WordCount int    `json:"wordCount"`
		Error     string `json:"error"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body = suite.request(t, http.MethodGet, statusPath, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status poll failed: %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Status != db.GenerationStatusGenerating {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Status != db.GenerationStatusCompleted {
		t.Fatalf("generation should complete, got %q (error=%q)", status.Status, status.Error)
	}
	if status.WordCount == 0 {
		t.Error("completed status should report a word count")
	}

	// 记录详情与预览
	recordPath := fmt.Sprintf("/admin/api/generations/%d", created.RecordID)
	resp, body = suite.request(t, http.MethodGet, recordPath, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get record failed: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "端到端") {
		t.Errorf("record payload missing generated content: %s", body)
	}

	resp, body = suite.request(t, http.MethodGet, recordPath+"/preview", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview failed: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "\\u003ch1") && !strings.Contains(string(body), "<h1") {
		t.Errorf("preview should render markdown headings: %s", body)
	}

	// 列表应包含刚生成的记录
	resp, body = suite.request(t, http.MethodGet, "/admin/api/generations?search=远程", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list failed: %d", resp.StatusCode)
	}
	var list struct {
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected 1 record in list, got %d", list.Total)
	}

	// 单章节生成
	resp, body = suite.request(t, http.MethodPost, "/admin/api/sections", map[string]interface{}{
		"section":   map[string]interface{}{"title": "引言", "wordCount": 300, "order": 1, "selected": true},
		"blogTitle": "远程协作完全指南",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("section generation failed: %d %s", resp.StatusCode, body)
	}

	// 删除并确认 404
	resp, _ = suite.request(t, http.MethodDelete, recordPath, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete failed: %d", resp.StatusCode)
	}
	resp, _ = suite.request(t, http.MethodGet, recordPath, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted record should 404, got %d", resp.StatusCode)
	}

	// 登出后访问再次被拒绝
	resp, _ = suite.request(t, http.MethodPost, "/admin/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout failed: %d", resp.StatusCode)
	}
	resp, _ = suite.request(t, http.MethodGet, "/admin/api/generations", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("post-logout access should be 401, got %d", resp.StatusCode)
	}
}
