package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shouldiwash/shouldiwash/pkg/api"
	"github.com/shouldiwash/shouldiwash/pkg/chart"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/server"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/submission"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// usageError is a mistake in how the command was invoked. Its message is
// shown to the user as is.
type usageError string

func (u usageError) Error() string {
	return string(u)
}

// userMessage turns an error into something safe to show. Details only go to
// the log.
func userMessage(err error) string {
	var (
		uErr   usageError
		vErrs  types.ValidationErrors
		apiErr *api.Error
	)
	switch {
	case errors.As(err, &uErr):
		return uErr.Error()
	case errors.Is(err, api.ErrNotLoggedIn), errors.Is(err, session.ErrNoSession):
		return "not logged in, run `shouldiwash login` first"
	case errors.As(err, &vErrs):
		return vErrs.Error()
	case errors.Is(err, submission.ErrSubmissionFailed):
		return submission.ErrSubmissionFailed.Error()
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Message != "":
		return apiErr.Message
	default:
		return "something went wrong, please try again"
	}
}

// withSession adds the stored token, if any, to ctx.
func withSession(ctx context.Context, e *env) (context.Context, types.Session, bool) {
	sess, err := e.sessions.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			log.Ctx(ctx).WarnContext(ctx, "failed to load session", slog.Any("error", err))
		}
		return ctx, types.Session{}, false
	}
	return api.WithToken(ctx, sess.Token), sess, true
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func loginCommand(_ *env) runFunc {
	username := lflag.String("username", "", "Account username")
	password := lflag.String("password", "", "Account password (read from stdin when empty)")

	return func(ctx context.Context, e *env) error {
		return runLogin(ctx, e, types.Credentials{Username: *username, Password: *password})
	}
}

func runLogin(ctx context.Context, e *env, creds types.Credentials) error {
	if creds.Password == "" && creds.Username != "" {
		pw, err := readLine(e.in)
		if err != nil {
			return err
		}
		creds.Password = pw
	}
	if err := creds.Validate(); err != nil {
		return usageError(err.Error())
	}

	token, err := e.api.Login(ctx, creds)
	if err != nil {
		return err
	}
	if err := session.Login(ctx, e.sessions, creds.Username, token); err != nil {
		return err
	}
	return e.print(struct {
		LoggedIn bool   `json:"loggedIn" yaml:"loggedIn"`
		Username string `json:"username" yaml:"username"`
	}{true, creds.Username}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Logged in as %s\n", creds.Username)
		return err
	})
}

func registerCommand(_ *env) runFunc {
	username := lflag.String("username", "", "Account username")
	email := lflag.String("email", "", "Account email")
	password := lflag.String("password", "", "Account password (read from stdin when empty)")

	return func(ctx context.Context, e *env) error {
		return runRegister(ctx, e, types.Registration{Username: *username, Email: *email, Password: *password})
	}
}

func runRegister(ctx context.Context, e *env, reg types.Registration) error {
	if reg.Password == "" && reg.Username != "" {
		pw, err := readLine(e.in)
		if err != nil {
			return err
		}
		reg.Password = pw
	}
	if err := reg.Validate(); err != nil {
		return usageError(err.Error())
	}

	if err := e.api.Register(ctx, reg); err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
			log.Ctx(ctx).WarnContext(ctx, "registration rejected", slog.Any("error", err))
			return usageError("registration failed: " + fieldMessages(apiErr.Fields))
		}
		return err
	}
	return e.print(struct {
		Registered bool   `json:"registered" yaml:"registered"`
		Username   string `json:"username" yaml:"username"`
	}{true, reg.Username}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Registered %s, you can now log in\n", reg.Username)
		return err
	})
}

func fieldMessages(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+strings.Join(fields[f], " "))
	}
	return strings.Join(parts, "; ")
}

func logoutCommand(_ *env) runFunc {
	return runLogout
}

func runLogout(ctx context.Context, e *env) error {
	if err := e.sessions.Clear(ctx); err != nil {
		return err
	}
	return e.print(struct {
		LoggedIn bool `json:"loggedIn" yaml:"loggedIn"`
	}{}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "Logged out")
		return err
	})
}

func profileCommand(_ *env) runFunc {
	return runProfile
}

func runProfile(ctx context.Context, e *env) error {
	ctx, _, _ = withSession(ctx, e)
	profile, err := e.api.UserProfile(ctx)
	if err != nil {
		return err
	}
	return e.print(profile, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Username: %s\nEmail:    %s\n", profile.Username, profile.Email)
		return err
	})
}

// formFlags registers the submission form flags. Empty flags keep the value
// from the form defaults.
func formFlags() func(defaults types.SubmissionForm) (types.SubmissionForm, error) {
	postCode := lflag.String("postcode", "", "UK post code")
	panels := lflag.String("panels", "", "Number of solar panels")
	orientation := lflag.String("orientation", "", "Panel orientation in degrees (0-360)")
	tilt := lflag.String("tilt", "", "Panel tilt in degrees (0-90)")
	date := lflag.String("date", "", "Date and time, YYYY-MM-DDTHH:MM")
	washingMachine := lflag.String("washing-machine", "", "Include the washing machine (true or false, empty keeps the default)")
	tumbleDryer := lflag.String("tumble-dryer", "", "Include the tumble dryer (true or false, empty keeps the default)")

	return func(defaults types.SubmissionForm) (types.SubmissionForm, error) {
		wm, err := parseOptionalBool("washing-machine", *washingMachine)
		if err != nil {
			return types.SubmissionForm{}, err
		}
		td, err := parseOptionalBool("tumble-dryer", *tumbleDryer)
		if err != nil {
			return types.SubmissionForm{}, err
		}
		return submission.Merge(defaults, submission.Override{
			PostCode:         *postCode,
			SolarPanels:      *panels,
			PanelOrientation: *orientation,
			PanelTilt:        *tilt,
			Date:             *date,
			WashingMachine:   wm,
			TumbleDryer:      td,
		}), nil
	}
}

// parseOptionalBool returns nil for an empty value.
func parseOptionalBool(name, val string) (*bool, error) {
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, usageError(fmt.Sprintf("invalid value %q for --%s, expected true or false", val, name))
	}
	return &b, nil
}

func validateCommand(_ *env) runFunc {
	form := formFlags()

	return func(ctx context.Context, e *env) error {
		f, err := form(e.submitter.Defaults())
		if err != nil {
			return err
		}
		return runValidate(ctx, e, f)
	}
}

func runValidate(ctx context.Context, e *env, form types.SubmissionForm) error {
	check := types.CheckSubmissionForm(form, e.submitter.Location())
	err := e.print(check, func(w io.Writer) error {
		if check.CanSubmit {
			_, err := fmt.Fprintln(w, "Ready to submit")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, f := range check.Missing {
			fmt.Fprintf(tw, "%s:\trequired\n", f)
		}
		fields := make([]string, 0, len(check.Errors))
		for f := range check.Errors {
			fields = append(fields, f)
		}
		slices.Sort(fields)
		for _, f := range fields {
			fmt.Fprintf(tw, "%s:\t%s\n", f, check.Errors[f])
		}
		return tw.Flush()
	})
	if err != nil {
		return err
	}
	if !check.CanSubmit {
		return usageError("the form cannot be submitted yet")
	}
	return nil
}

func submitCommand(_ *env) runFunc {
	form := formFlags()

	return func(ctx context.Context, e *env) error {
		f, err := form(e.submitter.Defaults())
		if err != nil {
			return err
		}
		return runSubmit(ctx, e, f)
	}
}

func runSubmit(ctx context.Context, e *env, form types.SubmissionForm) error {
	in, err := types.ParseSubmissionForm(form, e.submitter.Location())
	if err != nil {
		return err
	}

	ctx, _, loggedIn := withSession(ctx, e)
	res, err := e.submitter.Submit(ctx, in)
	if err != nil {
		return err
	}
	if loggedIn {
		ref := types.SubmissionRef{ID: res.ID, PostCode: in.PostCode, Date: in.Date}
		if err := session.RecordSubmission(ctx, e.sessions, ref); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to record submission", slog.String("submissionID", res.ID), slog.Any("error", err))
		}
	}

	if e.format != "text" {
		return e.print(res, nil)
	}
	fmt.Fprintf(e.out, "Submitted %s\n\n", res.ID)
	if !loggedIn {
		fmt.Fprintf(e.out, "Log in to see the chart for this submission\n")
		return nil
	}
	payload, err := e.api.ChartData(ctx, res.ID)
	if err != nil {
		// the submission went through; only the chart is missing
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch chart data", slog.String("submissionID", res.ID), slog.Any("error", err))
		return nil
	}
	return chart.RenderText(e.out, chart.Build(payload, e.now()), payload.Summary(res.ID))
}

type resultsOutput struct {
	Summary types.ChartSummary `json:"summary" yaml:"summary"`
	Chart   types.Chart        `json:"chart" yaml:"chart"`
}

func resultsCommand(_ *env) runFunc {
	id := lflag.String("id", "", "Submission id (defaults to the latest submission from this device)")
	export := lflag.String("export", "", "Write the chart to a file instead (.xlsx, .pdf or .json)")

	return func(ctx context.Context, e *env) error {
		return runResults(ctx, e, *id, *export)
	}
}

func runResults(ctx context.Context, e *env, submissionID, export string) error {
	ctx, sess, _ := withSession(ctx, e)
	if submissionID == "" {
		latest, ok := sess.LatestSubmission()
		if !ok {
			return usageError("no submissions from this device, pass --id")
		}
		submissionID = latest.ID
	}

	payload, err := e.api.ChartData(ctx, submissionID)
	if err != nil {
		return err
	}
	out := resultsOutput{
		Summary: payload.Summary(submissionID),
		Chart:   chart.Build(payload, e.now()),
	}

	if export != "" {
		return exportChart(export, out)
	}
	return e.print(out, func(w io.Writer) error {
		return chart.RenderText(w, out.Chart, out.Summary)
	})
}

func exportChart(path string, out resultsOutput) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		b, err = chart.BuildXLSX(out.Chart, out.Summary)
	case ".pdf":
		b, err = chart.BuildPDF(out.Chart, out.Summary)
	case ".json":
		b, err = marshalJSON(out)
	default:
		return usageError(fmt.Sprintf("unknown export format %q, expected .xlsx, .pdf or .json", filepath.Ext(path)))
	}
	if err != nil {
		return fmt.Errorf("failed to build export: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func historyCommand(_ *env) runFunc {
	return runHistory
}

func runHistory(ctx context.Context, e *env) error {
	sess, err := e.sessions.Load(ctx)
	if err != nil {
		return err
	}
	refs := slices.Clone(sess.Submissions)
	slices.Reverse(refs)
	if refs == nil {
		refs = []types.SubmissionRef{}
	}
	return e.print(refs, func(w io.Writer) error {
		if len(refs) == 0 {
			_, err := fmt.Fprintln(w, "No submissions yet")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPost code\tDate\tSubmitted")
		for _, ref := range refs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				ref.ID,
				ref.PostCode,
				ref.Date.Format(types.DateLayout),
				ref.CreatedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		return tw.Flush()
	})
}

func serveCommand(e *env) runFunc {
	srv := server.Configured(e.api, e.submitter, e.sessions)

	return func(ctx context.Context, e *env) error {
		server.RegisterMetrics(prometheus.DefaultRegisterer)
		// Run will block until context is canceled or error happens
		if err := srv.Run(ctx); err != nil {
			return err
		}
		log.Ctx(ctx).InfoContext(ctx, "dashboard exited cleanly")
		return nil
	}
}
