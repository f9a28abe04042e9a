package app

import (
	"context"
	"encoding/json"
	"fmt"

	"odin/internal/command"
	"odin/internal/ipc"
)

type dictated struct {
	Rule    string   `json:"rule,omitempty"`
	Intents []string `json:"intents,omitempty"`
	Ack     string   `json:"ack,omitempty"`
}

// Control serves one request from the control socket.
func (a *App) Control(ctx context.Context, msg ipc.Message) ipc.Reply {
	switch msg.Cmd {
	case ipc.CmdListen:
		text, cmd, err := a.Dictate(ctx)
		if err != nil {
			return ipc.Fail(err)
		}
		d := dictated{Rule: cmd.Rule, Ack: cmd.Ack}
		for _, in := range cmd.Intents {
			d.Intents = append(d.Intents, in.String())
		}
		return reply(text, d)

	case ipc.CmdSay:
		if msg.Text == "" {
			return ipc.Fail(fmt.Errorf("say: empty text"))
		}
		a.Say(msg.Text, msg.Priority)

	case ipc.CmdUtter:
		a.HandleUtterance(msg.Text)

	case ipc.CmdStart:
		a.StartListening()

	case ipc.CmdStop:
		a.StopListening()

	case ipc.CmdOpen:
		s, ok := command.ParseScreen(msg.Screen)
		if !ok {
			return ipc.Fail(fmt.Errorf("unknown screen %q", msg.Screen))
		}
		a.Open(s)

	case ipc.CmdStatus:
		return reply("", a.Status())

	case ipc.CmdHistory:
		tl, err := a.Timeline(ctx, msg.Limit)
		if err != nil {
			return ipc.Fail(err)
		}
		return reply("", tl)

	default:
		return ipc.Fail(fmt.Errorf("unknown command %q", msg.Cmd))
	}

	return ipc.Reply{OK: true}
}

func reply(text string, data any) ipc.Reply {
	raw, err := json.Marshal(data)
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.Reply{OK: true, Text: text, Data: raw}
}
