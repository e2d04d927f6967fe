package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "printbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// slowCommand promotes the request log line from debug to info.
const slowCommand = 750 * time.Millisecond

// wrap builds the handler the dispatcher runs for cmd. Outermost first:
// log, reply on failure, recover, timeout.
func wrap(cmd *Command) HandlerFunc {
	h := cmd.Handle
	if cmd.Timeout > 0 {
		h = withTimeout(h, cmd.Timeout)
	}
	h = recovered(h)
	h = replyOnFailure(h)
	return logged(h)
}

func withTimeout(next HandlerFunc, d time.Duration) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx, req)
	}
}

func recovered(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				req.Log.Error("command panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(ctx, req)
	}
}

// replyOnFailure tells the chat a command broke. Handlers report user
// mistakes (bad arguments) themselves and return nil.
func replyOnFailure(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		err := next(ctx, req)
		if err == nil {
			return nil
		}
		text := "Command failed."
		if errors.Is(err, context.DeadlineExceeded) {
			text = "Command timed out."
		}
		// The handler ctx may be spent; give the notice its own short budget.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := req.Reply(rctx, text); rerr != nil {
			req.Log.Debug("failure reply not sent", logx.Err(rerr))
		}
		return err
	}
}

func logged(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		start := time.Now()
		err := next(ctx, req)
		took := time.Since(start)

		fields := []logx.Field{
			logx.Int64("chat_id", req.Chat.ChatID),
			logx.Int64("from_id", req.FromID),
			logx.Int("args", len(req.Args)),
			logx.Duration("took", took),
		}
		switch {
		case err != nil:
			req.Log.Warn("command failed", append(fields, logx.Err(err))...)
		case took >= slowCommand:
			req.Log.Info("command slow", fields...)
		default:
			req.Log.Debug("command handled", fields...)
		}
		return err
	}
}
