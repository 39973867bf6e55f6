package v1

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"tasktrack/configs"
	"tasktrack/internal/api/v1/handlers"
	"tasktrack/internal/auth"
	"tasktrack/internal/middleware"
	"tasktrack/internal/repository"
	"tasktrack/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The suite runs against throwaway postgres and redis containers; docker
// must be available.
var (
	testDB    *sql.DB
	testRedis *redis.Client
	testCfg   configs.Config
)

const testTimeoutMs = 30000

func TestMain(m *testing.M) {
	os.Setenv("GO_ENV", "test")
	logger.InitLoggers()
	defer logger.SyncLoggers()

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct docker pool: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to docker: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	pgResource, err := pool.Run("postgres", "16-alpine", []string{
		"POSTGRES_USER=postgres",
		"POSTGRES_PASSWORD=secret",
		"POSTGRES_DB=tasktrack_test",
	})
	if err != nil {
		log.Fatalf("Could not start postgres: %v", err)
	}

	if err := pool.Retry(func() error {
		var err error
		testDB, err = sql.Open("postgres", fmt.Sprintf(
			"host=localhost port=%s user=postgres password=secret dbname=tasktrack_test sslmode=disable",
			pgResource.GetPort("5432/tcp")))
		if err != nil {
			return err
		}
		return testDB.Ping()
	}); err != nil {
		log.Fatalf("Could not connect to postgres: %v", err)
	}

	if err := repository.CreateTableIfNotExists(testDB); err != nil {
		log.Fatalf("Error creating tables: %v", err)
	}

	redisResource, err := pool.Run("redis", "7-alpine", nil)
	if err != nil {
		log.Fatalf("Could not start redis: %v", err)
	}

	if err := pool.Retry(func() error {
		testRedis = redis.NewClient(&redis.Options{
			Addr: "localhost:" + redisResource.GetPort("6379/tcp"),
		})
		return testRedis.Ping(context.Background()).Err()
	}); err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}

	testCfg = configs.Config{
		AccessTokenSecret:  "test-access-secret",
		RefreshTokenSecret: "test-refresh-secret",
		EncryptionKey:      "test-encryption-key",
		AppEnv:             "test",
	}

	code := m.Run()

	testDB.Close()
	testRedis.Close()
	_ = pool.Purge(pgResource)
	_ = pool.Purge(redisResource)

	os.Exit(code)
}

func newTestApp() *fiber.App {
	tokens := auth.NewService(testCfg.AccessTokenSecret, testCfg.RefreshTokenSecret)
	users := repository.NewUserRepo(testDB)

	h := &handlers.Handler{
		Cfg:      testCfg,
		Users:    users,
		Tasks:    repository.NewTaskRepo(testDB),
		Tokens:   tokens,
		Validate: validator.New(),
		Cache:    testRedis,
	}

	app := fiber.New()
	app.Use(middleware.ErrorHandler())
	RegisterRoutes(app, h, middleware.RequireAuth(tokens, users))
	RegisterNotFound(app)
	return app
}

// doRequest drives one request through the app and decodes the envelope.
func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, mod func(*http.Request)) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mod != nil {
		mod(req)
	}

	resp, err := app.Test(req, testTimeoutMs)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%d@example.com", prefix, time.Now().UnixNano())
}

// registerUser registers a fresh user and returns its id plus the session
// cookies set on the response.
func registerUser(t *testing.T, app *fiber.App, email string) (int, []*http.Cookie) {
	t.Helper()

	resp, result := doRequest(t, app, "POST", "/api/users/register", map[string]string{
		"username": "user",
		"email":    email,
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := result["data"].(map[string]interface{})
	user := data["user"].(map[string]interface{})
	return int(user["id"].(float64)), resp.Cookies()
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func createTask(t *testing.T, app *fiber.App, body map[string]interface{}) map[string]interface{} {
	t.Helper()

	resp, result := doRequest(t, app, "POST", "/api/tasks", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return result["data"].(map[string]interface{})["task"].(map[string]interface{})
}

func TestRegisterSetsSessionAndRejectsDuplicateEmail(t *testing.T) {
	app := newTestApp()
	email := uniqueEmail("register")

	_, cookies := registerUser(t, app, email)
	require.NotNil(t, cookieByName(cookies, "accessToken"))
	require.NotNil(t, cookieByName(cookies, "refreshToken"))
	assert.True(t, cookieByName(cookies, "accessToken").HttpOnly)

	resp, result := doRequest(t, app, "POST", "/api/users/register", map[string]string{
		"username": "someone-else",
		"email":    email,
		"password": "different",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email already registered", result["message"])
	assert.Equal(t, false, result["success"])
}

func TestLoginUniformError(t *testing.T) {
	app := newTestApp()
	email := uniqueEmail("login")
	registerUser(t, app, email)

	wrongPassword, wrongPasswordResult := doRequest(t, app, "POST", "/api/users/login", map[string]string{
		"email":    email,
		"password": "not-the-password",
	}, nil)
	unknownEmail, unknownEmailResult := doRequest(t, app, "POST", "/api/users/login", map[string]string{
		"email":    uniqueEmail("nobody"),
		"password": "whatever1",
	}, nil)

	// Wrong password and unknown email must be indistinguishable.
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.StatusCode)
	assert.Equal(t, wrongPasswordResult["message"], unknownEmailResult["message"])

	ok, okResult := doRequest(t, app, "POST", "/api/users/login", map[string]string{
		"email":    email,
		"password": "secret123",
	}, nil)
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	assert.NotNil(t, cookieByName(ok.Cookies(), "accessToken"))
	assert.NotNil(t, cookieByName(ok.Cookies(), "refreshToken"))
	user := okResult["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, email, user["email"])
	assert.Nil(t, user["password"])
}

func TestSessionGate(t *testing.T) {
	app := newTestApp()
	email := uniqueEmail("gate")
	_, cookies := registerUser(t, app, email)
	accessCookie := cookieByName(cookies, "accessToken")

	// No credential at all.
	resp, _ := doRequest(t, app, "GET", "/api/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage bearer token.
	resp, _ = doRequest(t, app, "GET", "/api/users/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Cookie credential.
	resp, result := doRequest(t, app, "GET", "/api/users/me", nil, func(r *http.Request) {
		r.AddCookie(accessCookie)
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	me := result["data"].(map[string]interface{})
	assert.Equal(t, email, me["email"])

	// Header credential.
	resp, _ = doRequest(t, app, "GET", "/api/users/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+accessCookie.Value)
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Header takes precedence over the cookie, so a bad header is not
	// rescued by a valid cookie.
	resp, _ = doRequest(t, app, "GET", "/api/users/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
		r.AddCookie(accessCookie)
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUserDirectory(t *testing.T) {
	app := newTestApp()
	email := uniqueEmail("directory")
	userID, cookies := registerUser(t, app, email)
	withSession := func(r *http.Request) { r.AddCookie(cookieByName(cookies, "accessToken")) }

	resp, result := doRequest(t, app, "GET", "/api/users/users", nil, withSession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := result["data"].([]interface{})
	assert.NotEmpty(t, users)
	for _, u := range users {
		assert.Nil(t, u.(map[string]interface{})["password"])
		assert.Nil(t, u.(map[string]interface{})["refreshToken"])
	}

	resp, result = doRequest(t, app, "GET", fmt.Sprintf("/api/users/users/%d", userID), nil, withSession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, email, result["data"].(map[string]interface{})["email"])

	resp, _ = doRequest(t, app, "GET", "/api/users/users/999999", nil, withSession)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshRotation(t *testing.T) {
	app := newTestApp()
	_, cookies := registerUser(t, app, uniqueEmail("refresh"))
	original := cookieByName(cookies, "refreshToken")
	require.NotNil(t, original)

	// No cookie at all.
	resp, _ := doRequest(t, app, "POST", "/api/users/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Rotation succeeds and returns a fresh pair.
	resp, result := doRequest(t, app, "POST", "/api/users/refresh", nil, func(r *http.Request) {
		r.AddCookie(original)
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := result["data"].(map[string]interface{})
	rotated := data["refreshToken"].(string)
	assert.NotEmpty(t, data["accessToken"])
	assert.NotEqual(t, original.Value, rotated)

	// The pre-rotation token no longer matches the stored one.
	resp, _ = doRequest(t, app, "POST", "/api/users/refresh", nil, func(r *http.Request) {
		r.AddCookie(original)
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The rotated token is the live one.
	resp, _ = doRequest(t, app, "POST", "/api/users/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: rotated})
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutIdempotentAndRevokesRefresh(t *testing.T) {
	app := newTestApp()
	_, cookies := registerUser(t, app, uniqueEmail("logout"))
	accessCookie := cookieByName(cookies, "accessToken")
	refreshCookie := cookieByName(cookies, "refreshToken")
	withSession := func(r *http.Request) { r.AddCookie(accessCookie) }

	resp, _ := doRequest(t, app, "POST", "/api/users/logout", nil, withSession)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Second logout clears an already-empty token and still succeeds.
	resp, _ = doRequest(t, app, "POST", "/api/users/logout", nil, withSession)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The revoked refresh token cannot mint a new pair.
	resp, _ = doRequest(t, app, "POST", "/api/users/refresh", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTaskLifecycle(t *testing.T) {
	app := newTestApp()
	userID, _ := registerUser(t, app, uniqueEmail("tasklife"))

	// Status defaults to pending when omitted.
	task := createTask(t, app, map[string]interface{}{
		"title":          "Write the report",
		"description":    "Quarterly numbers",
		"assignedUserId": userID,
	})
	assert.Equal(t, "pending", task["status"])
	taskID := int(task["id"].(float64))

	// Read joins the assigned-user summary.
	resp, result := doRequest(t, app, "GET", fmt.Sprintf("/api/tasks/%d", taskID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := result["data"].(map[string]interface{})["task"].(map[string]interface{})
	assert.Equal(t, "Write the report", fetched["title"])
	assignee := fetched["assignedUser"].(map[string]interface{})
	assert.Equal(t, float64(userID), assignee["id"])
	assert.NotEmpty(t, assignee["email"])

	// Partial update keeps the untouched fields.
	resp, result = doRequest(t, app, "PUT", fmt.Sprintf("/api/tasks/%d", taskID), map[string]interface{}{
		"status": "in-progress",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := result["data"].(map[string]interface{})["task"].(map[string]interface{})
	assert.Equal(t, "in-progress", updated["status"])
	assert.Equal(t, "Write the report", updated["title"])

	// Update refreshes the cache, so the next read serves the new status.
	resp, result = doRequest(t, app, "GET", fmt.Sprintf("/api/tasks/%d", taskID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cached := result["data"].(map[string]interface{})["task"].(map[string]interface{})
	assert.Equal(t, "in-progress", cached["status"])

	resp, _ = doRequest(t, app, "DELETE", fmt.Sprintf("/api/tasks/%d", taskID), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, "GET", fmt.Sprintf("/api/tasks/%d", taskID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, "DELETE", fmt.Sprintf("/api/tasks/%d", taskID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskValidation(t *testing.T) {
	app := newTestApp()
	userID, _ := registerUser(t, app, uniqueEmail("taskvalid"))

	// Missing title.
	resp, _ := doRequest(t, app, "POST", "/api/tasks", map[string]interface{}{
		"assignedUserId": userID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing assignee.
	resp, _ = doRequest(t, app, "POST", "/api/tasks", map[string]interface{}{
		"title": "Orphan task",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown status value.
	resp, _ = doRequest(t, app, "POST", "/api/tasks", map[string]interface{}{
		"title":          "Bad status",
		"status":         "done",
		"assignedUserId": userID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Update cannot blank the title or set a bogus status.
	task := createTask(t, app, map[string]interface{}{
		"title":          "Valid task",
		"assignedUserId": userID,
	})
	taskID := int(task["id"].(float64))

	resp, _ = doRequest(t, app, "PUT", fmt.Sprintf("/api/tasks/%d", taskID), map[string]interface{}{
		"title": "",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, "PUT", fmt.Sprintf("/api/tasks/%d", taskID), map[string]interface{}{
		"status": "bogus",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskListFilterValidation(t *testing.T) {
	app := newTestApp()

	resp, result := doRequest(t, app, "GET", "/api/tasks?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid status filter", result["message"])

	resp, result = doRequest(t, app, "GET", "/api/tasks?assignedUserId=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid assignedUserId filter", result["message"])
}

func TestTaskListPaginationClamp(t *testing.T) {
	app := newTestApp()
	userID, _ := registerUser(t, app, uniqueEmail("pageclamp"))

	for i := 0; i < 25; i++ {
		createTask(t, app, map[string]interface{}{
			"title":          fmt.Sprintf("Task %02d", i),
			"assignedUserId": userID,
		})
	}

	// 25 tasks at limit 10 make 3 pages; page=1000 serves the last one.
	resp, result := doRequest(t, app,
		"GET", fmt.Sprintf("/api/tasks?assignedUserId=%d&page=1000&limit=10", userID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := result["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["page"])
	assert.Equal(t, float64(10), data["limit"])
	assert.Equal(t, float64(25), data["totalTasks"])
	assert.Equal(t, float64(3), data["totalPages"])
	assert.Len(t, data["tasks"].([]interface{}), 5)

	// An oversized limit is capped at 50.
	resp, result = doRequest(t, app,
		"GET", fmt.Sprintf("/api/tasks?assignedUserId=%d&limit=9000", userID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(50), result["data"].(map[string]interface{})["limit"])
}

func TestTaskListOrderedByDueDate(t *testing.T) {
	app := newTestApp()
	userID, _ := registerUser(t, app, uniqueEmail("ordering"))

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for _, offset := range []int{3, 1, 2} {
		createTask(t, app, map[string]interface{}{
			"title":          fmt.Sprintf("Due in %d days", offset),
			"dueDate":        base.AddDate(0, 0, offset).Format(time.RFC3339),
			"status":         "completed",
			"assignedUserId": userID,
		})
	}
	// A pending task for the same user must not leak into the filter.
	createTask(t, app, map[string]interface{}{
		"title":          "Still pending",
		"assignedUserId": userID,
	})

	resp, result := doRequest(t, app,
		"GET", fmt.Sprintf("/api/tasks?assignedUserId=%d&status=completed", userID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tasks := result["data"].(map[string]interface{})["tasks"].([]interface{})
	require.Len(t, tasks, 3)
	titles := make([]string, len(tasks))
	for i, task := range tasks {
		entry := task.(map[string]interface{})
		assert.Equal(t, "completed", entry["status"])
		titles[i] = entry["title"].(string)
	}
	assert.Equal(t, []string{"Due in 1 days", "Due in 2 days", "Due in 3 days"}, titles)
}

func TestRegisterLoginCreateAndFilterFlow(t *testing.T) {
	app := newTestApp()

	userID, _ := registerUser(t, app, "a@x.com")

	resp, _ := doRequest(t, app, "POST", "/api/users/login", map[string]string{
		"email":    "a@x.com",
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	created := createTask(t, app, map[string]interface{}{
		"title":          "T1",
		"assignedUserId": userID,
	})

	resp, result := doRequest(t, app,
		"GET", fmt.Sprintf("/api/tasks?assignedUserId=%d", userID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tasks := result["data"].(map[string]interface{})["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	task := tasks[0].(map[string]interface{})
	assert.Equal(t, "T1", task["title"])
	assert.Equal(t, "pending", task["status"])
	assert.Equal(t, created["id"], task["id"])
}

func TestUnknownRouteEnvelope(t *testing.T) {
	app := newTestApp()

	resp, result := doRequest(t, app, "GET", "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "Route not found", result["message"])
}
