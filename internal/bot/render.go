package bot

import (
	"context"
	"errors"
)

// Button is one inline control.
type Button struct {
	Text   string
	Action Action
}

// View is a complete message: text plus rows of buttons.
type View struct {
	Text     string
	Keyboard [][]Button
}

// Renderer delivers views to the chat transport.
type Renderer interface {
	Send(ctx context.Context, chatID int64, v View) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, v View) (MessageRef, error)
}

// renderTarget updates "the current message" for one incoming update.
type renderTarget interface {
	render(ctx context.Context, v View) (MessageRef, error)
}

// callbackTarget edits the message whose button was pressed. When that
// message can no longer be edited, the view goes out as a new message.
type callbackTarget struct {
	renderer Renderer
	message  MessageRef
}

func (t callbackTarget) render(ctx context.Context, v View) (MessageRef, error) {
	ref, err := t.renderer.Edit(ctx, t.message, v)
	if err == nil {
		return ref, nil
	}
	if ctx.Err() != nil {
		return ref, err
	}
	sent, sendErr := t.renderer.Send(ctx, t.message.ChatID, v)
	if sendErr != nil {
		return MessageRef{}, errors.Join(err, sendErr)
	}
	return sent, nil
}

// textTarget edits the message the session remembers, or sends a new one
// when there is none or a fresh message is wanted.
type textTarget struct {
	renderer Renderer
	chatID   int64
	message  MessageRef
	fresh    bool
}

func (t textTarget) render(ctx context.Context, v View) (MessageRef, error) {
	if t.fresh || t.message.IsZero() {
		return t.renderer.Send(ctx, t.chatID, v)
	}
	return t.renderer.Edit(ctx, t.message, v)
}
