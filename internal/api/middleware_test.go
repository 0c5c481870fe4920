package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

func TestRequestLoggerRecordsAccessLog(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(logger.New("APITest", "", "")))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("User-Agent", "bench-client/1.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var entry *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "HTTP request handled" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatal("No access log entry was emitted")
	}

	info, ok := entry.Data["request_info"].(models.RequestInfo)
	if !ok {
		t.Fatalf("request_info has type %T", entry.Data["request_info"])
	}
	if info.Method != http.MethodGet || info.Path != "/ping" {
		t.Errorf("Logged %s %s, want GET /ping", info.Method, info.Path)
	}
	if info.UserAgent != "bench-client/1.0" {
		t.Errorf("UserAgent = %q, want bench-client/1.0", info.UserAgent)
	}

	payload, ok := entry.Data["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload has type %T", entry.Data["payload"])
	}
	if payload["status"] != http.StatusNoContent {
		t.Errorf("status = %v, want %d", payload["status"], http.StatusNoContent)
	}
}
