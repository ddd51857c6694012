// Package render formats store results for the terminal.
package render

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/zulandar/mimir/internal/commit"
	"github.com/zulandar/mimir/internal/models"
	"github.com/zulandar/mimir/internal/project"
	"github.com/zulandar/mimir/internal/task"
	"golang.org/x/term"
)

// TimeLayout is used for every timestamp shown in tables.
const TimeLayout = "2006-01-02 15:04"

var (
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9ece6a"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
)

// Printer writes formatted output to Out. Color is only applied when the
// output is a terminal.
type Printer struct {
	Out   io.Writer
	Color bool
}

// New returns a Printer for out, enabling color when out is a TTY.
func New(out io.Writer) *Printer {
	return &Printer{Out: out, Color: IsTerminal(out)}
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.Color {
		return text
	}
	return s.Render(text)
}

// table aligns tab-separated rows first and styles whole lines afterwards,
// so escape codes never count toward column widths.
type table struct {
	p      *Printer
	rows   []string
	styles []*lipgloss.Style
}

func (p *Printer) table(header ...string) *table {
	t := &table{p: p}
	t.add(&headerStyle, header...)
	return t
}

// add appends a row; s may be nil for an unstyled row.
func (t *table) add(s *lipgloss.Style, cells ...string) {
	t.rows = append(t.rows, strings.Join(cells, "\t"))
	t.styles = append(t.styles, s)
}

func (t *table) flush() {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	for _, r := range t.rows {
		fmt.Fprintln(w, r)
	}
	w.Flush()
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		if i < len(t.styles) && t.styles[i] != nil {
			line = t.p.style(*t.styles[i], line)
		}
		fmt.Fprintln(t.p.Out, line)
	}
}

// History prints a branch history, nearest commit first.
func (p *Printer) History(entries []commit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(p.Out, "No commits yet.")
		return
	}
	t := p.table("COMMIT", "DATE", "AUTHOR", "LOAD", "UNC", "MESSAGE")
	for _, e := range entries {
		t.add(nil,
			e.ShortID(),
			e.CreatedAt.Local().Format(TimeLayout),
			e.Author,
			metric(e.CognitiveLoad),
			metric(e.Uncertainty),
			truncate(firstLine(e.Message), 60))
	}
	t.flush()
}

// Branches prints the branches of a task, marking current with "*".
func (p *Printer) Branches(branches []models.Branch, current string) {
	if len(branches) == 0 {
		fmt.Fprintln(p.Out, "No branches.")
		return
	}
	t := p.table("", "BRANCH", "HEAD")
	for _, b := range branches {
		mark, style := "", (*lipgloss.Style)(nil)
		if b.Name == current {
			mark, style = "*", &currentStyle
		}
		head := "-"
		if b.HeadCommitID != nil {
			head = models.ShortID(*b.HeadCommitID)
		}
		t.add(style, mark, b.Name, head)
	}
	t.flush()
}

// TaskRow is one line of the task table.
type TaskRow struct {
	Task    models.Task
	Project string
	Stats   task.Stats
}

// Tasks prints tasks with commit counts, marking current with "*".
func (p *Printer) Tasks(rows []TaskRow, current string) {
	if len(rows) == 0 {
		fmt.Fprintln(p.Out, "No tasks found.")
		return
	}
	t := p.table("", "TASK", "PROJECT", "COMMITS", "LAST COMMIT", "EXTERNAL")
	for _, r := range rows {
		mark, style := "", (*lipgloss.Style)(nil)
		if r.Task.Name == current {
			mark, style = "*", &currentStyle
		}
		last := "-"
		if r.Stats.LastCommitAt != nil {
			last = r.Stats.LastCommitAt.Local().Format(TimeLayout)
		}
		ext := "-"
		if r.Task.ExternalID != nil {
			ext = *r.Task.ExternalID
		}
		t.add(style, mark, r.Task.Name, r.Project, strconv.FormatInt(r.Stats.CommitCount, 10), last, ext)
	}
	t.flush()
}

// Projects prints a project forest as an indented tree.
func (p *Printer) Projects(forest []*project.Node) {
	if len(forest) == 0 {
		fmt.Fprintln(p.Out, "No projects found.")
		return
	}
	for _, n := range forest {
		p.node(n, "", true, true)
	}
}

func (p *Printer) node(n *project.Node, prefix string, last, root bool) {
	var line, childPrefix string
	switch {
	case root:
		line = n.Name
	case last:
		line, childPrefix = prefix+"└── "+n.Name, prefix+"    "
	default:
		line, childPrefix = prefix+"├── "+n.Name, prefix+"│   "
	}
	if n.Truncated {
		line += p.style(dimStyle, " …")
	}
	fmt.Fprintln(p.Out, line)
	for i, c := range n.Children {
		p.node(c, childPrefix, i == len(n.Children)-1, false)
	}
}

// Commit prints one commit with its parents and full context.
func (p *Printer) Commit(c *models.Commit, parents []models.Commit) {
	fmt.Fprintf(p.Out, "%s %s\n", p.style(headerStyle, "commit"), p.style(idStyle, c.ID))
	if len(parents) > 1 {
		ids := make([]string, len(parents))
		for i, pc := range parents {
			ids[i] = pc.ShortID()
		}
		fmt.Fprintf(p.Out, "Merge:  %s\n", strings.Join(ids, " "))
	} else if len(parents) == 1 {
		fmt.Fprintf(p.Out, "Parent: %s\n", parents[0].ShortID())
	}
	fmt.Fprintf(p.Out, "Author: %s\n", c.Author)
	fmt.Fprintf(p.Out, "Date:   %s\n", c.CreatedAt.Local().Format(time.RFC1123))
	if c.CognitiveLoad != nil || c.Uncertainty != nil {
		fmt.Fprintf(p.Out, "Load:   %s  Uncertainty: %s\n", metric(c.CognitiveLoad), metric(c.Uncertainty))
	}
	fmt.Fprintf(p.Out, "\n    %s\n\n", c.Message)
	if c.FullContext != "" {
		fmt.Fprintln(p.Out, c.FullContext)
	}
}

// Context concatenates the contexts of commits in the order given.
func (p *Printer) Context(taskName string, commits []models.Commit) {
	if len(commits) == 0 {
		fmt.Fprintf(p.Out, "Task %q has no commits.\n", taskName)
		return
	}
	for i, c := range commits {
		if i > 0 {
			fmt.Fprintln(p.Out)
		}
		fmt.Fprintf(p.Out, "%s %s %s\n", p.style(headerStyle, "##"), p.style(idStyle, c.ShortID()), c.Message)
		fmt.Fprintln(p.Out, p.style(dimStyle, fmt.Sprintf("%s by %s", c.CreatedAt.Local().Format(TimeLayout), c.Author)))
		if c.FullContext != "" {
			fmt.Fprintln(p.Out)
			fmt.Fprintln(p.Out, strings.TrimRight(c.FullContext, "\n"))
		}
	}
}

// Status describes the current selection.
type Status struct {
	Project     string
	Task        string
	Branch      string
	Head        *models.Commit
	CommitCount int64
}

// Status prints the current selection and branch head.
func (p *Printer) Status(s Status) {
	if s.Task == "" {
		fmt.Fprintln(p.Out, "No task selected. Use 'mimir switch <task>'.")
		return
	}
	if s.Project != "" {
		fmt.Fprintf(p.Out, "Project: %s\n", s.Project)
	}
	fmt.Fprintf(p.Out, "Task:    %s\n", p.style(currentStyle, s.Task))
	fmt.Fprintf(p.Out, "Branch:  %s\n", s.Branch)
	if s.Head == nil {
		fmt.Fprintln(p.Out, "Head:    (no commits)")
	} else {
		fmt.Fprintf(p.Out, "Head:    %s %s\n", p.style(idStyle, s.Head.ShortID()), firstLine(s.Head.Message))
	}
	fmt.Fprintf(p.Out, "Commits: %d\n", s.CommitCount)
}

func metric(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// truncate shortens s to max runes, ending with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
