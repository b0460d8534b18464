package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"

	"github.com/mthiel/quick-feedback/app"
	"github.com/mthiel/quick-feedback/config"
	"github.com/mthiel/quick-feedback/database"
	"github.com/mthiel/quick-feedback/model"
)

const testUser = "admin"

// newTestApp opens a fresh migrated database in a temp dir and returns an
// App plus a router with the api routes wired sans the oauth middleware;
// the authenticated principal is injected directly instead.
func newTestApp(t *testing.T) (app.App, http.Handler) {
	t.Helper()

	cfg := config.Config{
		DBUrl:       filepath.Join(t.TempDir(), "test.sqlite"),
		TokenSecret: "test-secret",
		TokenTTL:    time.Minute,
	}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.EnsureUser(db, testUser, "hunter2"); err != nil {
		t.Fatalf("create test user: %v", err)
	}

	a := app.App{DB: db, Config: cfg}

	r := chi.NewRouter()
	r.Get("/api/forms/{id}", PublicGetForm(a))
	r.Post("/api/forms/{id}/submissions", PublicSubmitForm(a))
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(asAdmin)
		r.Post("/forms", CreateForm(a))
		r.Get("/forms", ListForms(a))
		r.Get("/forms/{id}", GetFormById(a))
		r.Put("/forms/{id}/active", SetFormActive(a))
		r.Delete("/forms/{id}", DeleteForm(a))
		r.Get("/forms/{id}/submissions", GetFormSubmissions(a))
		r.Get("/forms/{id}/submissions.csv", ExportFormCSV(a))
	})

	return a, r
}

func asAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), oauth.CredentialContext, testUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("content-type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return v
}

// createTestForm persists the spec's two-question satisfaction form and
// returns its id along with the stored questions in schema order.
func createTestForm(t *testing.T, h http.Handler) (string, []model.Question) {
	t.Helper()

	form := model.Form{
		Title:       "Satisfaction",
		Description: "Tell us how it went",
		Questions: []model.Question{
			{Type: model.TypeText, Text: "How did we do?", Required: true},
			{Type: model.TypeSingleChoice, Text: "Would you return?", Options: []string{"Yes", "No"}},
		},
	}
	rec := do(t, h, "POST", "/api/admin/forms", form)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create form: status %d, body %q", rec.Code, rec.Body.String())
	}
	created := decode[map[string]string](t, rec)
	formId := created["id"]
	if formId == "" {
		t.Fatal("create form: no id in response")
	}

	rec = do(t, h, "GET", "/api/admin/forms/"+formId, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get form: status %d", rec.Code)
	}
	stored := decode[model.Form](t, rec)
	return formId, stored.Questions
}

func countRows(t *testing.T, a app.App, table string) int {
	t.Helper()

	var n int
	err := a.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
