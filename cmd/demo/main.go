// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/Corphon/PersonaChat/internal/config"
	"github.com/Corphon/PersonaChat/internal/llm"
	"github.com/Corphon/PersonaChat/internal/llm/providers/chatcompat"
	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/utils"
)

// Console chat against the upstream, bypassing the HTTP gate. Useful for
// trying a personality without the browser UI.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if _, err := utils.InitLogger(cfg.DebugMode); err != nil {
		log.Fatalf("%v", err)
	}

	provider, err := llm.GetProvider(chatcompat.Name, map[string]string{
		"api_key":       cfg.UpstreamAPIKey,
		"base_url":      cfg.UpstreamURL,
		"default_model": cfg.UpstreamModel,
	})
	if err != nil {
		log.Fatalf("upstream provider: %v", err)
	}

	relay := services.NewChatRelay(provider, services.NewContextBuilder(nil),
		services.WithRelayTimeout(cfg.UpstreamTimeout),
		services.WithModel(cfg.UpstreamModel),
	)

	in := bufio.NewScanner(os.Stdin)
	personality := askPersonality(in)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var history []models.ConversationTurn
	first := true
	fmt.Printf("\nChatting with %s. Empty line continues, /quit exits.\n", personality.Name)

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "/quit" {
			return
		}
		if line == "" {
			line = models.ContinuationSentinel
		}

		history = append(history, models.ConversationTurn{Role: models.RoleUser, Content: line})
		req := &models.ChatRequest{
			Messages:       history,
			IsFirstMessage: first,
			Personality:    personality,
		}
		if issues := models.Validate(req); issues != nil {
			fmt.Printf("invalid request: %s\n", issues[0].Msg)
			history = history[:len(history)-1]
			continue
		}

		chunks, err := relay.Stream(ctx, req)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			history = history[:len(history)-1]
			continue
		}

		var reply strings.Builder
		fmt.Printf("%s: ", personality.Name)
		for chunk := range chunks {
			if chunk.Err != nil {
				fmt.Printf("\nerror: %v", chunk.Err)
				break
			}
			fmt.Print(chunk.Content)
			reply.WriteString(chunk.Content)
		}
		fmt.Println()

		if reply.Len() == 0 {
			history = history[:len(history)-1]
			continue
		}
		history = append(history, models.ConversationTurn{Role: models.RoleAssistant, Content: reply.String()})
		first = false

		if ctx.Err() != nil {
			return
		}
	}
}

func askPersonality(in *bufio.Scanner) *models.Personality {
	ask := func(prompt, fallback string) string {
		fmt.Printf("%s [%s]: ", prompt, fallback)
		if in.Scan() {
			if v := strings.TrimSpace(in.Text()); v != "" {
				return v
			}
		}
		return fallback
	}

	req := &models.SavePersonalityRequest{
		UserName: ask("Your name", "Traveler"),
		Name:     ask("Character name", "Rei"),
		Age:      ask("Character age", "24"),
		Location: ask("Location", "Kyoto"),
		Traits:   ask("Traits", "- Calm: rarely raises her voice"),
	}

	p, issues := services.NewPersonalityService(nil).Save(req)
	if issues != nil {
		log.Fatalf("invalid personality: %s %s", issues[0].Param, issues[0].Msg)
	}
	return p
}
