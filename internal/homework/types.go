// Package homework talks to the homework review API and models the review
// state the bot tracks between poll cycles.
package homework

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

var verdicts = map[Status]string{
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
}

func (s Status) Valid() bool {
	_, ok := verdicts[s]
	return ok
}

// Verdict returns the human-readable verdict for s ("" for unknown statuses).
func (s Status) Verdict() string { return verdicts[s] }

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("unexpected homework status %q", raw)
	}
	return s, nil
}

// Record is the review state of one homework as seen in a single poll.
type Record struct {
	ID              int64     `json:"id,omitempty"`
	HomeworkName    string    `json:"homework_name"`
	Status          Status    `json:"status"`
	VerdictText     string    `json:"verdict_text,omitempty"`
	ReviewerComment string    `json:"reviewer_comment,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Message renders the status-change notification for r.
func (r Record) Message() string {
	verdict := r.VerdictText
	if verdict == "" {
		verdict = r.Status.Verdict()
	}
	msg := fmt.Sprintf("Изменился статус проверки работы \"%s\". %s", r.HomeworkName, verdict)
	if c := strings.TrimSpace(r.ReviewerComment); c != "" {
		msg += "\n\nКомментарий ревьюера: " + c
	}
	return msg
}

// Response is a validated API answer. Records holds zero or one entry: the
// most recently updated homework.
type Response struct {
	Records     []Record
	CurrentDate int64
}

// Latest returns the record to evaluate, or nil when there were no updates.
func (r Response) Latest() *Record {
	if len(r.Records) == 0 {
		return nil
	}
	rec := r.Records[0]
	return &rec
}

// State is what survives between cycles: the last delivered record and the
// next from_date cursor.
type State struct {
	Last      *Record   `json:"last,omitempty"`
	Cursor    int64     `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}
