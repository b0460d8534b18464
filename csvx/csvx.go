// Package csvx renders aggregated form submissions as CSV.
//
// Every cell is quoted unconditionally, with embedded double quotes
// doubled, so the output is byte-stable for identical inputs. This is
// deliberately not encoding/csv, which quotes lazily and terminates
// records with \r\n.
package csvx

import (
	"strings"

	"github.com/mthiel/quick-feedback/model"
)

const TimeLayout = "2006-01-02 15:04:05"

// Export builds the CSV text for a form's submissions. The header row is
// "Submitted" followed by the question texts in schema order; each data row
// carries the submission timestamp and one cell per question, empty when
// the question was not answered.
func Export(questions []model.Question, submissions []model.Submission) string {
	rows := make([]string, 0, len(submissions)+1)

	header := make([]string, 0, len(questions)+1)
	header = append(header, quote("Submitted"))
	for _, q := range questions {
		header = append(header, quote(q.Text))
	}
	rows = append(rows, strings.Join(header, ","))

	for _, sub := range submissions {
		row := make([]string, 0, len(questions)+1)
		row = append(row, quote(sub.Time.UTC().Format(TimeLayout)))
		for _, q := range questions {
			row = append(row, quote(sub.Answers[q.ID]))
		}
		rows = append(rows, strings.Join(row, ","))
	}

	return strings.Join(rows, "\n")
}

// Filename derives the download file name for a form's export.
func Filename(title string) string {
	return title + "-responses.csv"
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
