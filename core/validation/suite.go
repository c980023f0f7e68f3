// Package validation runs the pre-flight checks behind `dashboard check`.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Step is one executed check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus is the outcome of a check.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is what a check function reports.
type Result struct {
	Status  StepStatus
	Message string
	Error   error
}

// Pass, Warn, Fail and Skip build a Result.
func Pass(format string, args ...any) Result {
	return Result{Status: StepPassed, Message: fmt.Sprintf(format, args...)}
}

func Warn(format string, args ...any) Result {
	return Result{Status: StepWarning, Message: fmt.Sprintf(format, args...)}
}

func Fail(err error, format string, args ...any) Result {
	return Result{Status: StepFailed, Message: fmt.Sprintf(format, args...), Error: err}
}

func Skip(format string, args ...any) Result {
	return Result{Status: StepSkipped, Message: fmt.Sprintf(format, args...)}
}

// Check is a named check. When RequiresPassing is set the check is skipped
// if any earlier step failed.
type Check struct {
	Name            string
	RequiresPassing bool
	Run             func(ctx context.Context) Result
}

// SuiteResult summarizes a suite run.
type SuiteResult struct {
	Steps       []Step
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// Suite runs checks in order and prints progress.
type Suite struct {
	title        string
	output       io.Writer
	checks       []Check
	timeout      time.Duration
	showProgress bool
	failFast     bool
}

// NewSuite creates a Suite with default settings.
func NewSuite(title string) *Suite {
	return &Suite{
		title:        title,
		output:       os.Stdout,
		timeout:      10 * time.Second,
		showProgress: true,
	}
}

// WithOutput sets the writer for progress output.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithTimeout bounds each check. Non-positive values are ignored.
func (s *Suite) WithTimeout(timeout time.Duration) *Suite {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// WithShowProgress enables or disables progress output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// WithFailFast stops at the first failure.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// Add appends checks to the suite.
func (s *Suite) Add(checks ...Check) *Suite {
	s.checks = append(s.checks, checks...)
	return s
}

// Run executes every check in order.
func (s *Suite) Run(ctx context.Context) SuiteResult {
	start := time.Now()
	steps := make([]Step, 0, len(s.checks))

	if s.showProgress {
		s.printHeader(s.title)
	}

	for _, check := range s.checks {
		var step Step
		if check.RequiresPassing && !allPassed(steps) {
			step = Step{Name: check.Name, Status: StepSkipped, Message: "Skipped due to earlier failures"}
			if s.showProgress {
				s.printStep(step)
			}
		} else {
			step = s.runStep(ctx, check)
		}
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result := buildResult(steps, start)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *Suite) runStep(ctx context.Context, check Check) Step {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", check.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	r := check.Run(ctx)
	step := Step{
		Name:    check.Name,
		Status:  r.Status,
		Message: r.Message,
		Error:   r.Error,
		Latency: time.Since(started),
	}
	if step.Status == StepPending || step.Status == StepRunning {
		step.Status = StepFailed
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func allPassed(steps []Step) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

func buildResult(steps []Step, start time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(start),
		Success:    true,
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *Suite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	// Overwrite the "running" line
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	dim := color.New(color.FgHiBlack)
	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(s.output, "━━━ Checks Passed ")
		dim.Fprintf(s.output, "(%d/%d passed in %v)", result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		failed := color.New(color.FgRed, color.Bold)
		failed.Fprintf(s.output, "━━━ Checks Failed ")
		dim.Fprintf(s.output, "(%d passed, %d failed)", result.PassedSteps, result.FailedSteps)
		failed.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// FirstError returns the first error from a failed step, or nil.
func (r SuiteResult) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a one-line summary.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Checks passed: ")
	} else {
		sb.WriteString("Checks failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d passed", r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	return sb.String()
}
