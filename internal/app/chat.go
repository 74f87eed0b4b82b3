package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chat runs one message through the command layer and prints the reply.
func (a *App) Chat(ctx context.Context, from, text string) error {
	if strings.TrimSpace(from) == "" {
		return errors.New("--from is required")
	}

	c, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintln(a.Out, a.newCommandHandler(c).Handle(ctx, from, text))
	return nil
}
