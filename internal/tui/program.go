package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/vivsim/internal/viv"
)

// RunFunc drives a coupled run, reporting every step to obs.
type RunFunc func(ctx context.Context, obs viv.Observer) error

// Observer forwards committed steps to a bubbletea program.
type Observer struct {
	p *tea.Program
}

func (o Observer) OnStep(r viv.Record) { o.p.Send(StepMsg(r)) }

// Run shows the run until the user quits. Quitting early cancels the run;
// the returned error is the run's.
func Run(ctx context.Context, info Info, run RunFunc, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	opts = append(opts, tea.WithContext(ctx))
	p := tea.NewProgram(newModel(info, cancel), opts...)

	done := make(chan error, 1)
	go func() {
		err := run(ctx, Observer{p: p})
		done <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return err
	}
	cancel()
	return <-done
}
