package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/askmycourse/internal/client"
	"github.com/raphaelgruber/askmycourse/internal/models"
)

const pollInterval = time.Second

// jobScanLimit bounds how many recent jobs are inspected for a failed stage.
const jobScanLimit = 100

// stages are the statuses a lecture passes through, in order.
var stages = []models.LectureStatus{
	models.StatusTranscribing,
	models.StatusIndexing,
	models.StatusIndexed,
}

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the lecture status
type tickMsg time.Time

// lectureUpdateMsg carries the polled lecture state
type lectureUpdateMsg struct {
	state lectureState
	err   error
}

// lectureState is one observation of a lecture's progress.
type lectureState struct {
	lecture *models.LectureDetail
	failed  *models.StageJobInfo
}

// progressModel is the bubbletea model for lecture ingestion progress.
type progressModel struct {
	client   *client.Client
	fileID   string
	state    lectureState
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, fileID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		fileID:   fileID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchLecture(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchLecture()

	case lectureUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch lecture status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.state = msg.state
		if m.state.failed != nil {
			m.err = stageError(m.state.failed)
			m.done = true
			return m, tea.Quit
		}
		if m.state.indexed() {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.state.lecture == nil {
		return "Loading lecture status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.state.statusName()))
	progressBar := m.progress.ViewAs(m.state.fraction())
	counts := fmt.Sprintf("%d/%d stages", m.state.stage(), len(stages))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nLecture %s continues in background.\nUse 'askmycourse lectures %s' to check status.\n",
			m.fileID, m.fileID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	output := m.theme.completedStyle().Render("✓ Indexed") + "\n"
	if l := m.state.lecture; l != nil && l.Title != nil {
		output += fmt.Sprintf("\n  Title:  %s\n", *l.Title)
	}
	return output
}

// fetchLecture polls the lecture and its jobs.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchLecture() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		state, err := pollLecture(ctx, m.client, m.fileID)
		return lectureUpdateMsg{state: state, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunLectureProgress runs the interactive progress UI until the lecture is indexed.
// Returns nil on success or Ctrl+C (background), error when a stage failed.
func RunLectureProgress(c *client.Client, fileID string) error {
	p := tea.NewProgram(newProgressModel(c, fileID))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}

// waitForLecture prints each status change until the lecture is indexed or a stage fails.
// Used when stdout is not a terminal.
func waitForLecture(ctx context.Context, c *client.Client, fileID string) error {
	last := ""
	for {
		state, err := pollLecture(ctx, c, fileID)
		if err != nil {
			return err
		}
		if state.failed != nil {
			return stageError(state.failed)
		}
		if name := state.statusName(); name != last {
			fmt.Printf("%s %s\n", time.Now().Format("15:04:05"), name)
			last = name
		}
		if state.indexed() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func pollLecture(ctx context.Context, c *client.Client, fileID string) (lectureState, error) {
	lecture, err := c.GetLecture(ctx, fileID)
	if err != nil {
		return lectureState{}, err
	}
	state := lectureState{lecture: lecture}
	if state.indexed() {
		return state, nil
	}

	jobs, err := c.ListJobs(ctx, jobScanLimit)
	if err != nil {
		return lectureState{}, err
	}
	state.failed = failedJob(lectureJobs(fileID, jobs))
	return state, nil
}

func (s lectureState) stage() int {
	if s.lecture == nil || s.lecture.Status == nil {
		return 0
	}
	for i, st := range stages {
		if *s.lecture.Status == st {
			return i + 1
		}
	}
	return 0
}

func (s lectureState) fraction() float64 {
	return float64(s.stage()) / float64(len(stages))
}

func (s lectureState) indexed() bool {
	return s.stage() == len(stages)
}

func (s lectureState) statusName() string {
	if s.stage() == 0 {
		return "Importing"
	}
	return s.lecture.StatusName()
}

// lectureJobs returns the jobs working on a lecture: those with its file_id argument
// and, transitively, those whose task_id points at one of them.
func lectureJobs(fileID string, jobs []models.StageJobInfo) []models.StageJobInfo {
	related := map[string]bool{}
	for changed := true; changed; {
		changed = false
		for i := range jobs {
			if related[jobs[i].ID] {
				continue
			}
			if jobs[i].ArgString("file_id") == fileID || related[jobs[i].ArgString("task_id")] {
				related[jobs[i].ID] = true
				changed = true
			}
		}
	}

	var out []models.StageJobInfo
	for _, job := range jobs {
		if related[job.ID] {
			out = append(out, job)
		}
	}
	return out
}

func failedJob(jobs []models.StageJobInfo) *models.StageJobInfo {
	for i := range jobs {
		if jobs[i].Status == models.JobStatusFailed {
			return &jobs[i]
		}
	}
	return nil
}

func stageError(job *models.StageJobInfo) error {
	msg := "unknown error"
	if job.Error != nil {
		msg = *job.Error
	}
	return errors.New(job.Method + " failed: " + msg)
}
