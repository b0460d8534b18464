package routes

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mthiel/quick-feedback/model"
)

func TestCreateFormRejectsBlankTitle(t *testing.T) {
	a, h := newTestApp(t)

	rec := do(t, h, "POST", "/api/admin/forms", model.Form{
		Title:     "   ",
		Questions: []model.Question{{Type: model.TypeText, Text: "Q"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "title") {
		t.Errorf("body %q does not mention the title", rec.Body.String())
	}
	if n := countRows(t, a, "form"); n != 0 {
		t.Errorf("form rows persisted: %d", n)
	}
}

func TestCreateFormRejectsZeroQuestions(t *testing.T) {
	a, h := newTestApp(t)

	rec := do(t, h, "POST", "/api/admin/forms", model.Form{Title: "Empty"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if n := countRows(t, a, "form"); n != 0 {
		t.Errorf("form rows persisted: %d", n)
	}
	if n := countRows(t, a, "question"); n != 0 {
		t.Errorf("question rows persisted: %d", n)
	}
}

func TestCreateFormAssignsOrderAndFiltersOptions(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, "POST", "/api/admin/forms", model.Form{
		Title: "Ordering",
		Questions: []model.Question{
			{Type: model.TypeText, Text: "First"},
			{Type: model.TypeSingleChoice, Text: "Second", Options: []string{"A", "  ", "", "B"}},
			{Type: model.TypeText, Text: "Third"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	formId := decode[map[string]string](t, rec)["id"]

	rec = do(t, h, "GET", "/api/admin/forms/"+formId, nil)
	form := decode[model.Form](t, rec)

	if len(form.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(form.Questions))
	}
	for i, text := range []string{"First", "Second", "Third"} {
		q := form.Questions[i]
		if q.Text != text || q.Order != i {
			t.Errorf("question[%d] = %q (order %d), want %q (order %d)", i, q.Text, q.Order, text, i)
		}
	}
	if got := form.Questions[1].Options; len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("options = %v, want [A B]", got)
	}
}

func TestListFormsWithResponseCounts(t *testing.T) {
	_, h := newTestApp(t)

	answeredId, questions := createTestForm(t, h)
	rec := do(t, h, "POST", "/api/admin/forms", model.Form{
		Title:     "Untouched",
		Questions: []model.Question{{Type: model.TypeText, Text: "Anything?"}},
	})
	untouchedId := decode[map[string]string](t, rec)["id"]

	rec = do(t, h, "POST", "/api/forms/"+answeredId+"/submissions", model.Submission{
		Answers: map[string]string{questions[0].ID: "Great!"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status %d, body %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "GET", "/api/admin/forms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	listing := decode[map[string][]model.FormSummary](t, rec)

	counts := map[string]int{}
	for _, f := range listing["forms"] {
		counts[f.ID] = f.Responses
	}
	if counts[answeredId] != 1 {
		t.Errorf("answered form count = %d, want 1", counts[answeredId])
	}
	if counts[untouchedId] != 0 {
		t.Errorf("untouched form count = %d, want 0", counts[untouchedId])
	}
}

func TestSetFormActive(t *testing.T) {
	_, h := newTestApp(t)
	formId, _ := createTestForm(t, h)

	deactivate := map[string]bool{"active": false}
	rec := do(t, h, "PUT", "/api/admin/forms/"+formId+"/active", deactivate)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: status %d", rec.Code)
	}

	// idempotent
	rec = do(t, h, "PUT", "/api/admin/forms/"+formId+"/active", deactivate)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("repeat deactivate: status %d", rec.Code)
	}

	// the public link is gone while inactive
	rec = do(t, h, "GET", "/api/forms/"+formId, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("public get of inactive form: status %d, want 404", rec.Code)
	}

	rec = do(t, h, "PUT", "/api/admin/forms/"+formId+"/active", map[string]bool{"active": true})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reactivate: status %d", rec.Code)
	}
	rec = do(t, h, "GET", "/api/forms/"+formId, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("public get of reactivated form: status %d", rec.Code)
	}
}

func TestSetFormActiveUnknownForm(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, "PUT", "/api/admin/forms/"+uuid.NewString()+"/active", map[string]bool{"active": false})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteFormCascades(t *testing.T) {
	a, h := newTestApp(t)
	formId, questions := createTestForm(t, h)

	rec := do(t, h, "POST", "/api/forms/"+formId+"/submissions", model.Submission{
		Answers: map[string]string{questions[0].ID: "Great!", questions[1].ID: "Yes"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status %d", rec.Code)
	}

	rec = do(t, h, "DELETE", "/api/admin/forms/"+formId, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	for _, table := range []string{"form", "question", "response", "answer"} {
		if n := countRows(t, a, table); n != 0 {
			t.Errorf("%s rows left after delete: %d", table, n)
		}
	}
}

func TestGetSubmissionsOrdering(t *testing.T) {
	a, h := newTestApp(t)
	formId, _ := createTestForm(t, h)

	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)
	var ids []string
	for _, at := range []time.Time{t1, t2, t3} {
		id := uuid.NewString()
		ids = append(ids, id)
		_, err := a.Exec(`INSERT INTO response (id, form_id, submitted_at) VALUES (?, ?, ?)`, id, formId, at)
		if err != nil {
			t.Fatalf("insert response: %v", err)
		}
	}

	rec := do(t, h, "GET", "/api/admin/forms/"+formId+"/submissions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	listing := decode[map[string][]model.Submission](t, rec)
	submissions := listing["submissions"]

	if len(submissions) != 3 {
		t.Fatalf("submissions = %d, want 3", len(submissions))
	}
	// newest first: [t3, t2, t1]
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if submissions[i].ID != want {
			t.Errorf("submissions[%d] = %s, want %s", i, submissions[i].ID, want)
		}
	}
}

func TestGetSubmissionsTieBreak(t *testing.T) {
	a, h := newTestApp(t)
	formId, _ := createTestForm(t, h)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	first, second := uuid.NewString(), uuid.NewString()
	for _, id := range []string{first, second} {
		_, err := a.Exec(`INSERT INTO response (id, form_id, submitted_at) VALUES (?, ?, ?)`, id, formId, at)
		if err != nil {
			t.Fatalf("insert response: %v", err)
		}
	}

	rec := do(t, h, "GET", "/api/admin/forms/"+formId+"/submissions", nil)
	listing := decode[map[string][]model.Submission](t, rec)
	submissions := listing["submissions"]

	if len(submissions) != 2 {
		t.Fatalf("submissions = %d, want 2", len(submissions))
	}
	// identical timestamps fall back to insertion order, newest first
	if submissions[0].ID != second || submissions[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", submissions[0].ID, submissions[1].ID, second, first)
	}
}

func TestExportCSVEndToEnd(t *testing.T) {
	_, h := newTestApp(t)
	formId, questions := createTestForm(t, h)

	rec := do(t, h, "POST", "/api/forms/"+formId+"/submissions", model.Submission{
		Answers: map[string]string{questions[0].ID: "Great!"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: status %d, body %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "GET", "/api/admin/forms/"+formId+"/submissions", nil)
	listing := decode[map[string][]model.Submission](t, rec)
	if len(listing["submissions"]) != 1 {
		t.Fatalf("submissions = %d, want 1", len(listing["submissions"]))
	}
	answers := listing["submissions"][0].Answers
	if answers[questions[0].ID] != "Great!" {
		t.Errorf("answers[q1] = %q, want %q", answers[questions[0].ID], "Great!")
	}
	if _, present := answers[questions[1].ID]; present {
		t.Error("unanswered question present in aggregation")
	}

	rec = do(t, h, "GET", "/api/admin/forms/"+formId+"/submissions.csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv;charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Satisfaction-responses.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(rec.Body.String(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 csv lines, got %d: %q", len(lines), rec.Body.String())
	}
	if lines[0] != `"Submitted","How did we do?","Would you return?"` {
		t.Errorf("header = %q", lines[0])
	}
	cells := strings.Split(lines[1], ",")
	if len(cells) != 3 {
		t.Fatalf("expected 3 cells, got %d: %q", len(cells), lines[1])
	}
	if cells[1] != `"Great!"` {
		t.Errorf("answer cell = %q", cells[1])
	}
	if cells[2] != `""` {
		t.Errorf("unanswered cell = %q, want empty quoted string", cells[2])
	}
}

func TestExportCSVUnknownForm(t *testing.T) {
	_, h := newTestApp(t)

	rec := do(t, h, "GET", "/api/admin/forms/"+uuid.NewString()+"/submissions.csv", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
