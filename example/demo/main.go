// Command demo sends a text prompt through a realtime session and streams
// the response to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	rtclient "github.com/codewandler/rtclient-go"
	"github.com/codewandler/rtclient-go/events"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var (
		prompt       = "Repeat exactly: Hello, world!"
		instructions = "You are a helpful assistant."
		debug        = false
	)

	flag.StringVar(&prompt, "prompt", prompt, "user message to send")
	flag.StringVar(&instructions, "instructions", instructions, "session instructions")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	client := rtclient.New(rtclient.WithDefaultLogger())
	must(client.Connect(ctx))
	defer client.Close(ctx)

	_, err := client.Configure(ctx, events.SessionUpdateParams{
		Modalities:    []events.Modality{events.ModalityText},
		Instructions:  instructions,
		TurnDetection: &events.TurnDetection{Type: "none"},
	})
	must(err)

	_, err = client.SendItem(ctx, events.UserMessage(prompt), "")
	must(err)

	response, err := client.GenerateResponse(ctx)
	must(err)

	for {
		item, err := response.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		must(err)

		switch it := item.(type) {
		case *rtclient.MessageItem:
			streamMessage(ctx, it)
		case *rtclient.FunctionCallItem:
			must(it.WaitForCompletion(ctx))
			fmt.Printf("\n[function call] %s(%s)\n", it.FunctionName(), it.Arguments())
		}
	}

	fmt.Printf("\n[response %s: %s]\n", response.ID(), response.Status())
	if usage := response.Usage(); usage != nil {
		fmt.Printf("[tokens: %d in, %d out]\n", usage.InputTokens, usage.OutputTokens)
	}

	os.Exit(0)
}

func streamMessage(ctx context.Context, item *rtclient.MessageItem) {
	for {
		content, err := item.Next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		must(err)

		switch c := content.(type) {
		case *rtclient.TextContent:
			for {
				delta, err := c.Next(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				must(err)
				fmt.Print(delta)
			}
		case *rtclient.AudioContent:
			for {
				delta, err := c.NextTranscript(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				must(err)
				fmt.Print(delta)
			}
		}
	}
}
