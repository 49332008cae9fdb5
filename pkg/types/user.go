package types

import (
	"errors"
	"strings"
	"time"
)

// MaxSessionSubmissions caps how many submission ids a session remembers.
const MaxSessionSubmissions = 20

// Credentials are sent to POST /login/.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// Validate ensures both fields are filled in.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return errors.New("username is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// Registration is sent to POST /register/.
type Registration struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}

// Validate ensures every field is filled in and the email looks like one.
func (r Registration) Validate() error {
	if err := (Credentials{Username: r.Username, Password: r.Password}).Validate(); err != nil {
		return err
	}
	at := strings.LastIndex(r.Email, "@")
	if at < 1 || at == len(r.Email)-1 {
		return errors.New("a valid email is required")
	}
	return nil
}

// Profile is the response of GET /userprofile/.
type Profile struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
}

// Session is what the client keeps in device local storage between runs.
type Session struct {
	Token       string          `json:"token" yaml:"token"`
	Username    string          `json:"username,omitempty" yaml:"username,omitempty"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
	Submissions []SubmissionRef `json:"submissions,omitempty" yaml:"submissions,omitempty"`
}

// SubmissionRef remembers a submission made from this device.
type SubmissionRef struct {
	ID        string    `json:"id" yaml:"id"`
	PostCode  string    `json:"postCode" yaml:"postCode"`
	Date      time.Time `json:"date" yaml:"date"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// LoggedIn returns true if the session holds a token.
func (s Session) LoggedIn() bool {
	return s.Token != ""
}

// RecordSubmission appends ref, dropping the oldest entries over the cap.
func (s *Session) RecordSubmission(ref SubmissionRef) {
	s.Submissions = append(s.Submissions, ref)
	if over := len(s.Submissions) - MaxSessionSubmissions; over > 0 {
		s.Submissions = append([]SubmissionRef(nil), s.Submissions[over:]...)
	}
}

// LatestSubmission returns the most recently recorded submission.
func (s Session) LatestSubmission() (SubmissionRef, bool) {
	if len(s.Submissions) == 0 {
		return SubmissionRef{}, false
	}
	return s.Submissions[len(s.Submissions)-1], true
}
