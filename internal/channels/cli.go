package channels

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/haasonsaas/relay/pkg/models"
)

// CLIAdapter prints responses to a writer. Used by the relay CLI and as
// the reference adapter in tests.
type CLIAdapter struct {
	mu  sync.Mutex
	out io.Writer

	// ShowEvents echoes runtime events alongside responses.
	ShowEvents bool
}

// NewCLIAdapter creates a CLI adapter writing to out.
func NewCLIAdapter(out io.Writer) *CLIAdapter {
	return &CLIAdapter{out: out}
}

func (a *CLIAdapter) ChannelType() models.ChannelType { return models.ChannelCLI }

func (a *CLIAdapter) SendMessage(_ context.Context, _ string, text string, attachments ...models.Attachment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := fmt.Fprintln(a.out, text); err != nil {
		return err
	}
	for _, att := range attachments {
		if _, err := fmt.Fprintf(a.out, "[attachment: %s %s]\n", att.Type, att.URL); err != nil {
			return err
		}
	}
	return nil
}

func (a *CLIAdapter) SendRuntimeEvent(_ context.Context, _ string, event *models.RuntimeEvent) error {
	if !a.ShowEvents || event == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.out, "[%s]\n", event.Type)
	return err
}
