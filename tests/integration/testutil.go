//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/podiumhq/podium/internal/api"
	"github.com/podiumhq/podium/internal/auth"
	"github.com/podiumhq/podium/internal/config"
	"github.com/podiumhq/podium/internal/pipeline"
	"github.com/podiumhq/podium/internal/provider"
	"github.com/podiumhq/podium/internal/responses"
	"github.com/podiumhq/podium/internal/stream"
	"github.com/podiumhq/podium/internal/usage"
)

const testJWTSecret = "test-access-secret-32-chars-long!!"

type TestEnv struct {
	Pool          *pgxpool.Pool
	RedisClient   *redis.Client
	Server        *httptest.Server
	UsageStore    *usage.PostgresStore
	ResponseStore *responses.PostgresStore
}

var testEnv *TestEnv

// SetupTestEnv builds the shared environment once per test binary. Containers
// are reaped by testcontainers when the process exits, so no per-test cleanup
// is registered: the environment outlives the test that created it.
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "podium_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/podium_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}

	// Run migrations
	m, err := migrate.New(
		fmt.Sprintf("file://%s", getMigrationsPath()),
		dsn,
	)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})

	// Fake OpenAI-compatible upstream
	fakeProvider := httptest.NewServer(http.HandlerFunc(serveFakeCompletions))

	// Setup services
	usageStore := usage.NewPostgresStore(pool)
	usageSvc := usage.NewService(usageStore, nil, 10)
	usageHandler := usage.NewHandler(usageSvc)

	responseStore := responses.NewPostgresStore(pool)
	responseHandler := responses.NewHandler(responseStore, nil)

	providerClient := provider.NewOpenAIClient(config.ProviderConfig{
		BaseURL: fakeProvider.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Timeout: 10 * time.Second,
	})
	pipelineSvc := pipeline.NewService(usageSvc, responseStore, providerClient, stream.Config{
		Threshold: 100,
		Interval:  100 * time.Millisecond,
	})
	pipelineHandler := pipeline.NewHandler(pipelineSvc)

	verifier := auth.NewVerifier(testJWTSecret)

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		Reserve:  usageHandler.Reserve,
		Complete: usageHandler.Complete,
		Release:  usageHandler.Release,
		GetUsage: usageHandler.GetUsage,

		Chat:    pipelineHandler.Chat,
		Analyze: pipelineHandler.Analyze,

		GetResponse:    responseHandler.Get,
		ResponseEvents: responseHandler.Events,

		AuthMiddleware: auth.Middleware(verifier),
	})

	server := httptest.NewServer(router)

	testEnv = &TestEnv{
		Pool:          pool,
		RedisClient:   redisClient,
		Server:        server,
		UsageStore:    usageStore,
		ResponseStore: responseStore,
	}

	return testEnv
}

// serveFakeCompletions answers /chat/completions in both streaming and
// one-shot JSON mode with fixed payloads.
func serveFakeCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stream bool `json:"stream"`
	}
	body, _ := io.ReadAll(r.Body)
	json.Unmarshal(body, &req)

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello from \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"the judge.\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":5,\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{
		"choices":[{"message":{"content":"{\"mainPurpose\":\"A hackathon judging platform\",\"keyTechnologiesAndFrameworks\":\"Go, Postgres\",\"mainFeaturesAndFunctionality\":\"Scores submissions\"}"},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":20,"completion_tokens":30,"total_tokens":50}
	}`)
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func MintToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
