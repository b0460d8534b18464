package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/mthiel/quick-feedback/app"
	"github.com/mthiel/quick-feedback/csvx"
	"github.com/mthiel/quick-feedback/httpx"
	"github.com/mthiel/quick-feedback/log"
	"github.com/mthiel/quick-feedback/model"
)

// principal returns the authenticated username set by the oauth middleware.
func principal(r *http.Request) string {
	credential, _ := r.Context().Value(oauth.CredentialContext).(string)
	return credential
}

func formIdParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
		return "", false
	}
	return id, true
}

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := model.Form{}
		err := render.DecodeJSON(r.Body, &form)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err := model.ValidateForm(form); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_form.validate", "%s", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		formId := uuid.NewString()
		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO form (id, creator, title, description, active, created_at)
			VALUES (?, ?, ?, ?, 1, ?)`,
			formId,
			principal(r),
			form.Title,
			form.Description,
			time.Now().UTC(),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO question (id, form_id, type, text, required, options, ord)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.questions.prepare", err)
			return
		}
		defer stmt.Close()

		for i, q := range form.Questions {
			var optionsJson []byte
			if q.Type == model.TypeSingleChoice {
				optionsJson, err = json.Marshal(model.FilterOptions(q.Options))
				if err != nil {
					httpx.LogInternalError(w, "db.insert_form.questions.parse_options", err)
					return
				}
			}
			_, err := stmt.ExecContext(r.Context(), uuid.NewString(), formId, q.Type, q.Text, q.Required, string(optionsJson), i)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_form.questions.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": formId,
		})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT f.id, f.title, f.description, f.active, f.created_at
			FROM form f
			WHERE f.creator = ?
			ORDER BY f.created_at DESC`,
			principal(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}
		defer rows.Close()

		forms := []model.FormSummary{}
		for rows.Next() {
			f := model.FormSummary{}
			err = rows.Scan(&f.ID, &f.Title, &f.Description, &f.Active, &f.CreatedAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_forms.scan", err)
				return
			}

			forms = append(forms, f)
		}

		// one count query per form
		for i := range forms {
			err = app.QueryRowContext(r.Context(), `
				SELECT COUNT(*) FROM response WHERE form_id = ?`,
				forms[i].ID,
			).Scan(&forms[i].Responses)
			if err != nil {
				httpx.LogInternalError(w, "db.get_forms.count", err)
				return
			}
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		form := model.Form{}
		err := app.QueryRowContext(r.Context(), `
			SELECT f.id, f.title, f.description, f.active, f.created_at
			FROM form f
			WHERE f.id = ? AND f.creator = ?`,
			formId,
			principal(r),
		).Scan(&form.ID, &form.Title, &form.Description, &form.Active, &form.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		form.Questions, err = loadQuestions(r, app, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.questions", err)
			return
		}

		render.JSON(w, r, form)
	}
}

func SetFormActive(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		var body struct {
			Active bool `json:"active"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE form SET active = ?
			WHERE id = ? AND creator = ?`,
			body.Active,
			formId,
			principal(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.active", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.active.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_form.active", formId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// answers and responses cascade from the form row, but only the
		// owner's delete may reach it
		res, err := tx.ExecContext(r.Context(), `
			DELETE FROM form
			WHERE id = ? AND creator = ?`,
			formId,
			principal(r),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_form", formId)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func GetFormSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		if !ownsForm(w, r, app, formId) {
			return
		}

		submissions, err := aggregateSubmissions(r, app, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}

func ExportFormCSV(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		var title string
		err := app.QueryRowContext(r.Context(), `
			SELECT title FROM form
			WHERE id = ? AND creator = ?`,
			formId,
			principal(r),
		).Scan(&title)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "export_csv", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.export_csv.form", err)
			return
		}

		questions, err := loadQuestions(r, app, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.export_csv.questions", err)
			return
		}

		submissions, err := aggregateSubmissions(r, app, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.export_csv.submissions", err)
			return
		}

		w.Header().Set("Content-Type", "text/csv;charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, csvx.Filename(title)))
		w.Write([]byte(csvx.Export(questions, submissions)))
	}
}

func ownsForm(w http.ResponseWriter, r *http.Request, app app.App, formId string) bool {
	var one int
	err := app.QueryRowContext(r.Context(), `
		SELECT 1 FROM form
		WHERE id = ? AND creator = ?`,
		formId,
		principal(r),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		httpx.LogNotFound(w, "get_form", formId)
		return false
	}
	if err != nil {
		httpx.LogInternalError(w, "db.get_form", err)
		return false
	}
	return true
}

func loadQuestions(r *http.Request, app app.App, formId string) ([]model.Question, error) {
	rows, err := app.QueryContext(r.Context(), `
		SELECT q.id, q.type, q.text, q.required, q.options, q.ord
		FROM question q
		WHERE q.form_id = ?
		ORDER BY q.ord`,
		formId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q := model.Question{}
		var opts sql.NullString
		err = rows.Scan(&q.ID, &q.Type, &q.Text, &q.Required, &opts, &q.Order)
		if err != nil {
			return nil, err
		}

		if opts.String != "" {
			err = json.Unmarshal([]byte(opts.String), &q.Options)
			if err != nil {
				return nil, err
			}
		}

		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// aggregateSubmissions folds the answer rows of every response to the form
// into one record per respondent, newest first. Submission time breaks ties
// by insertion order, so the listing is stable.
func aggregateSubmissions(r *http.Request, app app.App, formId string) ([]model.Submission, error) {
	rows, err := app.QueryContext(r.Context(), `
		SELECT r.id, r.submitted_at, a.question_id, a.value
		FROM response r
		LEFT OUTER JOIN answer a ON (r.id = a.response_id)
		WHERE r.form_id = ?
		ORDER BY r.submitted_at DESC, r.rowid DESC`,
		formId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := []model.Submission{}
	for rows.Next() {
		s := model.Submission{}
		var questionId, value sql.NullString
		err = rows.Scan(&s.ID, &s.Time, &questionId, &value)
		if err != nil {
			return nil, err
		}

		lastIdx := len(submissions) - 1
		if lastIdx < 0 || submissions[lastIdx].ID != s.ID {
			s.Answers = map[string]string{}
			submissions = append(submissions, s)
			lastIdx++
		}
		if questionId.Valid {
			submissions[lastIdx].Answers[questionId.String] = value.String
		}
	}
	return submissions, rows.Err()
}
