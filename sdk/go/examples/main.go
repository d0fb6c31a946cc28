package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"AIBank-Agent/internal/a2ui"
	"AIBank-Agent/internal/agent"
	"AIBank-Agent/internal/api"
	"AIBank-Agent/internal/banking"
	"AIBank-Agent/pkg/logger"
	"AIBank-Agent/sdk/go/aibank"
)

func main() {
	templates, err := a2ui.Load()
	if err != nil {
		panic(err)
	}
	runtime := agent.New(banking.NewMockGateway(time.Now()), agent.WithLogger(logger.Discard()))
	server := api.NewServer(":0", runtime, templates, api.WithLogger(logger.Discard()))

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	client := aibank.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	card, err := client.AgentCard(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("connected to %s (%s)\n", card.Name, card.Description)

	resp, err := client.Chat(ctx, "show my accounts")
	if err != nil {
		panic(err)
	}
	fmt.Printf("chat: %s header=%v a2ui messages=%d\n", resp.Text, resp.Data["headerText"], len(resp.A2UI))

	task, err := client.SendTask(ctx, "what is left on my mortgage?", "")
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s %s: %s\n", task.ID, task.Status.State, task.Status.Message.Text())
}
