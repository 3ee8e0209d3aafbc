// File path: internal/classifier/classifier_test.go
package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/agrisense/farmchat/internal/llm"
)

type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return p.reply, p.err
}

func (p *scriptedProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	return nil, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func TestParseRouteCasingAndTrailingText(t *testing.T) {
	cases := map[string]Route{
		"DATA":                                   RouteSensorData,
		"  data.\n":                              RouteSensorData,
		"rag":                                    RouteKnowledge,
		"Both, obviously":                        RouteBoth,
		"UNKNOWN":                                RouteUnknown,
		"no label in sight":                      RouteUnknown,
		"Thought: this is data related\nDATA":    RouteSensorData,
		"the answer is RAG because of documents": RouteKnowledge,
	}
	for reply, want := range cases {
		if got := ParseRoute(reply); got != want {
			t.Errorf("ParseRoute(%q) = %v, want %v", reply, got, want)
		}
	}
}

func TestParseRouteFirstOccurrenceWins(t *testing.T) {
	if got := ParseRoute("RAG or maybe DATA"); got != RouteKnowledge {
		t.Fatalf("expected first label to win, got %v", got)
	}
	if got := ParseRoute("DATA then RAG"); got != RouteSensorData {
		t.Fatalf("expected first label to win, got %v", got)
	}
}

func TestClassifyDeterministicUnderFixedReply(t *testing.T) {
	c := New(&scriptedProvider{reply: "DATA"})
	for i := 0; i < 3; i++ {
		route, err := c.Classify(context.Background(), "현재 온도 몇 도야?")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if route != RouteSensorData {
			t.Fatalf("expected RouteSensorData, got %v", route)
		}
	}
}

func TestClassifyProviderFailureDegradesToUnknown(t *testing.T) {
	c := New(&scriptedProvider{err: errors.New("connection refused")})
	route, err := c.Classify(context.Background(), "현재 온도 몇 도야?")
	if err == nil {
		t.Fatal("expected error to be surfaced")
	}
	if route != RouteUnknown {
		t.Fatalf("expected RouteUnknown, got %v", route)
	}
}
