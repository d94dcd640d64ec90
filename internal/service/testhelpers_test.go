package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/draftforge/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.User{},
		&db.GenerationRecord{},
		&db.ProviderCredential{},
		&db.GenerationStatistic{},
		&db.GenerationVisit{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return gdb
}

// fakeHTTPClient 以函数形式模拟 httpDoer。
type fakeHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return f.do(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

// fakeProvider 是可编程的 ProviderClient 假实现。
type fakeProvider struct {
	complete func(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return f.complete(ctx, req)
}

func fixedProviderFactory(content string) ProviderFactory {
	return func(cred Credentials) (ProviderClient, error) {
		return &fakeProvider{complete: func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
			return CompletionResult{Content: content}, nil
		}}, nil
	}
}

func failingProviderFactory(message string) ProviderFactory {
	return func(cred Credentials) (ProviderClient, error) {
		return &fakeProvider{complete: func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
			return CompletionResult{}, &ProviderError{Provider: cred.Provider, Message: message}
		}}, nil
	}
}

func seedCredentials(t *testing.T, gdb *gorm.DB, userID uint) {
	t.Helper()
	svc := NewCredentialService(gdb)
	if _, err := svc.UpdateCredentials(userID, CredentialsInput{
		Provider:   ProviderOpenAI,
		APIKey:     "sk-test-key",
		ModelName:  "gpt-4o-mini",
		Creativity: CreativityBalanced,
	}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
}

func createTestUser(t *testing.T, gdb *gorm.DB, username string) db.User {
	t.Helper()
	user := db.User{Username: username, Password: "x"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
