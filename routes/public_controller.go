package routes

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/mthiel/quick-feedback/app"
	"github.com/mthiel/quick-feedback/httpx"
	"github.com/mthiel/quick-feedback/log"
	"github.com/mthiel/quick-feedback/model"
)

func PublicGetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		form := model.Form{}
		err := app.QueryRowContext(r.Context(), `
			SELECT f.id, f.title, f.description, f.active
			FROM form f
			WHERE f.id = ?`,
			formId,
		).Scan(&form.ID, &form.Title, &form.Description, &form.Active)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}

		// a deactivated form is closed to the public
		if !form.Active {
			httpx.LogNotFound(w, "get_form.inactive", formId)
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

func PublicSubmitForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, ok := formIdParam(w, r)
		if !ok {
			return
		}

		submission := model.Submission{}
		err := render.DecodeJSON(r.Body, &submission)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		var active bool
		err = app.QueryRowContext(r.Context(), `
			SELECT f.active FROM form f WHERE f.id = ?`,
			formId,
		).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}
		if !active {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "form.inactive", "this form is closed")
			return
		}

		questions, err := loadQuestions(r, app, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_form.questions", err)
			return
		}

		// no write happens before the answer set checks out
		if err := model.ValidateAnswers(questions, submission.Answers); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "submit.validate", "%s", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// the active gate holds at insert time, even against a
		// concurrent deactivation
		submissionId := uuid.NewString()
		res, err := tx.ExecContext(r.Context(), `
			INSERT INTO response (id, form_id, submitted_at)
			SELECT ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM form WHERE id = ? AND active = 1)`,
			submissionId,
			formId,
			time.Now().UTC(),
			formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.verify", err)
			return
		}
		if n < 1 {
			httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, "form.inactive", "this form is closed")
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO answer (response_id, question_id, value)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.answers.prepare", err)
			return
		}
		defer stmt.Close()

		// one answer row per question actually answered; unknown keys and
		// blank values are dropped
		known := map[string]bool{}
		for _, q := range questions {
			known[q.ID] = true
		}
		for questionId, value := range submission.Answers {
			if !known[questionId] || strings.TrimSpace(value) == "" {
				continue
			}
			_, err := stmt.ExecContext(r.Context(), submissionId, questionId, value)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_response.answers.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": submissionId,
		})
	}
}
