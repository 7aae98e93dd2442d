//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/store-rating/internal/config"
	"github.com/iliyamo/store-rating/internal/database"
	"github.com/iliyamo/store-rating/internal/logging"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/router"
	"github.com/iliyamo/store-rating/internal/service"
)

const adminPassword = "Admin#2024"

var (
	db       *sql.DB
	baseURL  string
	adminTok string
	runID    = time.Now().UnixNano()
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	settings := database.Settings{
		User: env("DB_USER", "root"),
		Pass: env("DB_PASS", ""),
		Host: env("DB_HOST", "localhost"),
		Port: env("DB_PORT", "3306"),
		Name: env("DB_NAME", "store_rating_e2e"),
	}
	if err := migrateUp(ctx, settings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	var err error
	db, err = database.Open(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mysql not ready: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Config{
		JWTSecret:       "e2e-secret",
		TokenTTL:        time.Hour,
		BcryptCost:      4,
		UserNameMinLen:  20,
		StoreNameMinLen: 3,
	}
	adminEmail := fmt.Sprintf("admin-%d@example.com", runID)
	if _, err := repository.NewUserRepo(db).EnsureAdmin(ctx,
		"End To End Administrator", adminEmail, adminPassword, "", cfg.BcryptCost); err != nil {
		fmt.Fprintf(os.Stderr, "seed admin: %v\n", err)
		os.Exit(1)
	}

	srv := httptest.NewServer(router.New(router.Deps{Cfg: cfg, Log: logging.Discard(), DB: db}))
	baseURL = srv.URL

	adminTok, err = login(adminEmail, adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admin login: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	srv.Close()
	_ = db.Close()
	os.Exit(code)
}

func migrateUp(ctx context.Context, s database.Settings) error {
	mdb, err := database.Open(ctx, s)
	if err != nil {
		return err
	}
	m, err := database.NewMigrator(mdb)
	if err != nil {
		_ = mdb.Close()
		return err
	}
	defer func() { _, _ = m.Close() }()
	return database.MigrateUp(m)
}

func call(method, path, token string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func login(email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	code, err := call(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return "", err
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("login status %d", code)
	}
	return out.Token, nil
}

type account struct {
	ID    uint64
	Token string
}

func register(t *testing.T, tag, role string) account {
	t.Helper()
	var out struct {
		Token string `json:"token"`
		User  struct {
			ID uint64 `json:"id"`
		} `json:"user"`
	}
	code, err := call(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"name":     "End To End Account " + tag,
		"email":    fmt.Sprintf("%s-%d@example.com", tag, runID),
		"password": "Secret#12",
		"role":     role,
	}, &out)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, code)
	return account{ID: out.User.ID, Token: out.Token}
}

func createStore(t *testing.T, tag string, ownerID uint64) uint64 {
	t.Helper()
	body := map[string]any{"name": "Store " + tag, "email": fmt.Sprintf("store-%s-%d@example.com", tag, runID)}
	if ownerID != 0 {
		body["owner_id"] = ownerID
	}
	var out struct {
		Store struct {
			ID uint64 `json:"id"`
		} `json:"store"`
	}
	code, err := call(http.MethodPost, "/v1/stores", adminTok, body, &out)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, code)
	return out.Store.ID
}

type submitOut struct {
	RatingID      uint64  `json:"rating_id"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  uint64  `json:"total_ratings"`
	Error         string  `json:"error"`
}

func submit(t *testing.T, tok string, storeID uint64, rating int) (int, submitOut) {
	t.Helper()
	var out submitOut
	code, err := call(http.MethodPost, "/v1/ratings", tok, map[string]any{"store_id": storeID, "rating": rating}, &out)
	require.NoError(t, err)
	return code, out
}

type storeOut struct {
	AverageRating      float64           `json:"average_rating"`
	TotalRatings       uint64            `json:"total_ratings"`
	RatingDistribution map[string]uint64 `json:"rating_distribution"`
}

func getStore(t *testing.T, id uint64) storeOut {
	t.Helper()
	var out struct {
		Store storeOut `json:"store"`
	}
	code, err := call(http.MethodGet, fmt.Sprintf("/v1/stores/%d", id), "", nil, &out)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	return out.Store
}

func countRows(t *testing.T, userID, storeID uint64) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM ratings WHERE user_id=? AND store_id=?", userID, storeID).Scan(&n))
	return n
}

func TestRatingLifecycle(t *testing.T) {
	storeID := createStore(t, "lifecycle", 0)
	a, b, c := register(t, "rater-a", "user"), register(t, "rater-b", "user"), register(t, "rater-c", "user")

	submit(t, a.Token, storeID, 5)
	_, out := submit(t, b.Token, storeID, 3)
	require.Equal(t, 4.0, out.AverageRating)

	// A: [5,3] + 1
	code, first := submit(t, c.Token, storeID, 1)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 3.0, first.AverageRating)
	assert.Equal(t, uint64(3), first.TotalRatings)

	// B: resubmission overwrites in place
	code, second := submit(t, c.Token, storeID, 4)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.RatingID, second.RatingID)
	assert.Equal(t, 4.0, second.AverageRating)
	assert.Equal(t, uint64(3), second.TotalRatings)
	assert.Equal(t, 1, countRows(t, c.ID, storeID))

	// C: delete restores [5,3]
	code, err := call(http.MethodDelete, fmt.Sprintf("/v1/ratings/%d", second.RatingID), c.Token, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	s := getStore(t, storeID)
	assert.Equal(t, 4.0, s.AverageRating)
	assert.Equal(t, uint64(2), s.TotalRatings)

	// deleting again, or someone else's rating, is not found
	code, _ = call(http.MethodDelete, fmt.Sprintf("/v1/ratings/%d", second.RatingID), c.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call(http.MethodDelete, fmt.Sprintf("/v1/ratings/%d", first.RatingID-1), c.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	storeID := createStore(t, "upsert", 0)
	u := register(t, "rater-upsert", "user")

	submit(t, u.Token, storeID, 2)
	var created1, updated1 time.Time
	require.NoError(t, db.QueryRow("SELECT created_at, updated_at FROM ratings WHERE user_id=? AND store_id=?", u.ID, storeID).
		Scan(&created1, &updated1))

	time.Sleep(1100 * time.Millisecond)
	submit(t, u.Token, storeID, 5)
	var created2, updated2 time.Time
	require.NoError(t, db.QueryRow("SELECT created_at, updated_at FROM ratings WHERE user_id=? AND store_id=?", u.ID, storeID).
		Scan(&created2, &updated2))

	assert.Equal(t, created1, created2)
	assert.True(t, updated2.After(updated1))
}

func TestEmptyStoreReportsZeros(t *testing.T) {
	// D
	s := getStore(t, createStore(t, "empty", 0))
	assert.Equal(t, 0.0, s.AverageRating)
	assert.Equal(t, uint64(0), s.TotalRatings)
	assert.Equal(t, map[string]uint64{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0}, s.RatingDistribution)
}

func TestInvalidRatingDoesNotWrite(t *testing.T) {
	// E
	storeID := createStore(t, "invalid", 0)
	u := register(t, "rater-invalid", "user")
	submit(t, u.Token, storeID, 4)

	code, out := submit(t, u.Token, storeID, 6)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_failed", out.Error)
	assert.Equal(t, 4.0, getStore(t, storeID).AverageRating)
}

func TestStoreOwnerCannotRate(t *testing.T) {
	// F
	o := register(t, "owner-f", "store_owner")
	storeID := createStore(t, "owned", o.ID)

	code, out := submit(t, o.Token, storeID, 5)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", out.Error)
	assert.Equal(t, 0, countRows(t, o.ID, storeID))

	var dash struct {
		Store struct {
			ID uint64 `json:"id"`
		} `json:"store"`
	}
	code, err := call(http.MethodGet, "/v1/owner/dashboard", o.Token, nil, &dash)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, storeID, dash.Store.ID)
}

func TestConcurrentSubmissionsKeepAggregateConsistent(t *testing.T) {
	storeID := createStore(t, "concurrent", 0)
	const n = 12
	accounts := make([]account, n)
	for i := range accounts {
		accounts[i] = register(t, fmt.Sprintf("rater-conc-%02d", i), "user")
	}

	var wg sync.WaitGroup
	for i, a := range accounts {
		wg.Add(1)
		go func(tok string, v int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, baseURL+"/v1/ratings",
				bytes.NewBufferString(fmt.Sprintf(`{"store_id":%d,"rating":%d}`, storeID, v)))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+tok)
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}(a.Token, i%5+1)
	}
	wg.Wait()

	var count int
	var mean float64
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*), COALESCE(ROUND(AVG(rating),2),0) FROM ratings WHERE store_id=?", storeID).Scan(&count, &mean))
	s := getStore(t, storeID)
	assert.Equal(t, n, count)
	assert.Equal(t, uint64(count), s.TotalRatings)
	assert.Equal(t, mean, s.AverageRating)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	storeID := createStore(t, "idempotent", 0)
	u := register(t, "rater-idem", "user")
	submit(t, u.Token, storeID, 3)

	svc := service.NewRatingService(db)
	avg1, total1, err := svc.RecomputeAverage(context.Background(), storeID)
	require.NoError(t, err)
	avg2, total2, err := svc.RecomputeAverage(context.Background(), storeID)
	require.NoError(t, err)
	assert.Equal(t, avg1, avg2)
	assert.Equal(t, total1, total2)
	assert.Equal(t, 3.0, avg1)
}

func TestDeleteUserRecomputesStores(t *testing.T) {
	storeID := createStore(t, "userdelete", 0)
	a, b := register(t, "rater-del-a", "user"), register(t, "rater-del-b", "user")
	submit(t, a.Token, storeID, 5)
	submit(t, b.Token, storeID, 1)

	code, err := call(http.MethodDelete, fmt.Sprintf("/v1/users/%d", b.ID), adminTok, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)

	s := getStore(t, storeID)
	assert.Equal(t, 5.0, s.AverageRating)
	assert.Equal(t, uint64(1), s.TotalRatings)

	// the deleted user's token stops working immediately
	code, _ = call(http.MethodGet, "/v1/auth/me", b.Token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
