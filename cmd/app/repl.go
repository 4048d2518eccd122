package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"companion-chat/internal/domain"
	"companion-chat/internal/infra/api"
	"companion-chat/internal/usecase"
)

// runREPL reads one message per line and prints each reply. "/history"
// prints the stored conversation, "/models" lists what the backend serves,
// "/quit" or EOF exits.
func runREPL(ctx context.Context, chat usecase.ChatUseCase, models api.ModelCatalog, conversationID string, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprint(out, "> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
		case "/quit":
			return nil
		case "/history":
			msgs, err := chat.History(ctx, conversationID)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role.Label(), m.Content)
			}
		case "/models":
			printModels(ctx, models, out)
		default:
			res, err := chat.SendMessage(ctx, conversationID, line)
			switch {
			case errors.Is(err, domain.ErrGeneration):
				fmt.Fprintln(out, "(no reply, try again)")
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			default:
				if conversationID == "" {
					conversationID = res.ConversationID
					fmt.Fprintf(out, "(conversation %s)\n", conversationID)
				}
				fmt.Fprintln(out, res.Reply)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}

func printModels(ctx context.Context, models api.ModelCatalog, out io.Writer) {
	if models == nil {
		fmt.Fprintln(out, "(no models)")
		return
	}
	names, err := models.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	for _, name := range names {
		info, err := models.GetModelInfo(name)
		if err != nil || info.Description == "" {
			fmt.Fprintln(out, name)
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", name, info.Description)
	}
}
