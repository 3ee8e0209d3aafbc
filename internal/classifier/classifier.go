// File path: internal/classifier/classifier.go
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/llm"
)

// Route is the retrieval path chosen for a question.
type Route int

const (
	RouteUnknown Route = iota
	RouteSensorData
	RouteKnowledge
	RouteBoth
)

func (r Route) String() string {
	switch r {
	case RouteSensorData:
		return "sensor_data"
	case RouteKnowledge:
		return "knowledge"
	case RouteBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Label tokens the model is instructed to emit, in scan order.
var labelRoutes = []struct {
	label string
	route Route
}{
	{"DATA", RouteSensorData},
	{"RAG", RouteKnowledge},
	{"BOTH", RouteBoth},
	{"UNKNOWN", RouteUnknown},
}

var classifierPrompt = prompts.NewPromptTemplate(`당신은 스마트팜 데이터를 관리하는 AI입니다.
사용자의 질문을 분석하여 반드시 'DATA', 'RAG', 'BOTH', 'UNKNOWN' 중 하나만 반환하세요.

** 분류 기준 **
- DATA: 현재 온도, 습도, 센서 데이터 등 실시간 정보와 특정 날짜, 농가명, 센서 데이터 등 정확한 값을 요청하는 경우
- RAG: 최적 온도, 생육 조건, 작물 관리법, 스마트팜 운영 지식 등 문서에서 찾을 수 있는 정보를 요청하는 경우
- BOTH: 현재 데이터를 기준 정보와 비교해야 하는 경우 (예: "지금 온도가 적당해?", "지금 CO2 농도는 기준에 맞아?")
- UNKNOWN: 스마트팜과 관련 없는 일반적인 질문 또는 의미 없는 질문

** 예제 질문 및 분류 결과 **
1. "현재 온도 몇 도야?" → DATA
2. "딸기 최적 온도는 얼마야?" → RAG
3. "지금 온도가 최적 범위야?" → BOTH
4. "지난주 농가별 평균 습도는?" → DATA
5. "딸기 병해충 관리 방법은?" → RAG
6. "현재 조도와 생육 단계별 최적 조도 비교해줘." → BOTH
7. "내일 뭐 할까?" → UNKNOWN

응답은 반드시 'DATA', 'RAG', 'BOTH', 'UNKNOWN' 중 하나만 반환하세요.
다른 단어나 설명 없이 정확한 분류명만 출력하세요.

사용자의 질문: "{{.question}}"`, []string{"question"})

// Classifier routes a question with a single categorical LLM decision.
type Classifier struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Classify returns exactly one route. A provider failure returns
// RouteUnknown alongside the error so the caller can continue with the
// conversational path; classification must never take the pipeline down.
func (c *Classifier) Classify(ctx context.Context, question string) (Route, error) {
	if c == nil || c.provider == nil {
		return RouteUnknown, fmt.Errorf("classifier provider not configured")
	}
	prompt, err := classifierPrompt.Format(map[string]any{"question": question})
	if err != nil {
		return RouteUnknown, fmt.Errorf("render classifier prompt: %w", err)
	}
	reply, err := c.provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		common.Logger().Warn("classifier: provider call failed", "error", err)
		return RouteUnknown, err
	}
	route := ParseRoute(reply)
	common.Logger().Info("classifier: question classified", "route", route.String())
	return route, nil
}

// ParseRoute extracts the first label occurring in the reply,
// case-insensitive, so surrounding commentary does not break routing. No
// label at all degrades to RouteUnknown.
func ParseRoute(reply string) Route {
	upper := strings.ToUpper(reply)
	best := -1
	route := RouteUnknown
	for _, candidate := range labelRoutes {
		idx := strings.Index(upper, candidate.label)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
			route = candidate.route
		}
	}
	return route
}
