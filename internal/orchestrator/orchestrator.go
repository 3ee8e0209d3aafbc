// File path: internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"github.com/agrisense/farmchat/internal/classifier"
	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/common/telemetry"
	"github.com/agrisense/farmchat/internal/dataset"
	"github.com/agrisense/farmchat/internal/llm"
	"github.com/agrisense/farmchat/internal/retriever"
	"github.com/agrisense/farmchat/internal/vector"
)

const (
	sensorSectionHeader    = "### 생육 데이터"
	documentSectionHeader  = "### RAG 문서 데이터"
	webSectionHeader       = "### 웹 검색 결과 (출처가 검증되지 않은 웹 정보입니다)"
	systemPrompt           = "당신은 스마트팜 운영을 돕는 AI 어시스턴트입니다. 항상 공식적인 한국어(존댓말)로 응답하십시오."
	temporalMarkerFallback = "오늘 날짜의 데이터를 찾을 수 없습니다."
)

// temporalMarkers pin a sensor-data question to the current day.
var temporalMarkers = []string{"오늘", "현재", "지금"}

var groundedPrompt = prompts.NewPromptTemplate(`항상 공식적인 한국어로 응답하십시오.
아래에 제공된 문맥에 기반해서만 응답하십시오. 문맥에 없는 정보를 추가하거나 일반 지식으로 보완하지 마십시오.
문맥에 질문과 관련된 정보가 없다면 다음과 같이 응답하십시오:
"제공된 문서에서 해당 정보를 찾을 수 없습니다."

{{.context}}

### 사용자 질문
{{.question}}

### AI 어시스턴트의 응답:`, []string{"context", "question"})

// Orchestrator routes each question through classification, gathers the
// grounding context the route calls for, and generates the final answer.
type Orchestrator struct {
	provider llm.Provider
	store    vector.Store
	registry *dataset.ColumnRegistry
	classify *classifier.Classifier
	retrieve *retriever.Retriever
	cfg      Config
	now      func() time.Time
}

func New(provider llm.Provider, store vector.Store, registry *dataset.ColumnRegistry, web retriever.WebSearcher, cfg Config) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = defaults.WebResults
	}
	if cfg.MaxFilterRows <= 0 {
		cfg.MaxFilterRows = defaults.MaxFilterRows
	}
	if cfg.SensorWindowStart <= 0 {
		cfg.SensorWindowStart = defaults.SensorWindowStart
	}
	if cfg.SensorWindowGrowth <= 1 {
		cfg.SensorWindowGrowth = defaults.SensorWindowGrowth
	}
	if cfg.SensorWindowCap <= 0 {
		cfg.SensorWindowCap = defaults.SensorWindowCap
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = defaults.BranchTimeout
	}
	return &Orchestrator{
		provider: provider,
		store:    store,
		registry: registry,
		classify: classifier.New(provider),
		retrieve: retriever.New(provider, store, web, retriever.Config{
			TopK:       cfg.TopK,
			Threshold:  cfg.Threshold,
			WebResults: cfg.WebResults,
		}),
		cfg: cfg,
		now: time.Now,
	}
}

// Answer produces the reply for one user question. Retrieval failures of any
// kind degrade to an emptier context; only a generation failure is surfaced.
func (o *Orchestrator) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}
	logger := common.Logger()
	route, err := o.classify.Classify(ctx, question)
	if err != nil {
		logger.Warn("orchestrator: classification failed, continuing without context", "error", err)
		route = classifier.RouteUnknown
	}
	telemetry.RecordRoute(route.String())
	logger.Info("orchestrator: question routed", "route", route.String())

	contextText := o.buildContext(ctx, question, route)
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	if contextText == "" {
		messages = append(messages, llm.Message{Role: "user", Content: question})
	} else {
		prompt, err := groundedPrompt.Format(map[string]any{
			"context":  contextText,
			"question": question,
		})
		if err != nil {
			return "", fmt.Errorf("render answer prompt: %w", err)
		}
		messages = append(messages, llm.Message{Role: "user", Content: prompt})
	}
	messages, err = llm.NormalizeMessages(messages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	reply, err := o.provider.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (o *Orchestrator) buildContext(ctx context.Context, question string, route classifier.Route) string {
	switch route {
	case classifier.RouteSensorData:
		return o.sensorBranch(ctx, question)
	case classifier.RouteKnowledge:
		return o.knowledgeBranch(ctx, question)
	case classifier.RouteBoth:
		return o.bothBranches(ctx, question)
	default:
		return ""
	}
}

// bothBranches gathers sensor and document context concurrently into
// distinct buffers. A failed side contributes nothing; the surviving side
// still grounds the answer.
func (o *Orchestrator) bothBranches(ctx context.Context, question string) string {
	var sensorText, knowledgeText string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sensorText = o.sensorBranch(ctx, question)
	}()
	go func() {
		defer wg.Done()
		knowledgeText = o.knowledgeBranch(ctx, question)
	}()
	wg.Wait()
	sections := make([]string, 0, 2)
	if sensorText != "" {
		sections = append(sections, sensorText)
	}
	if knowledgeText != "" {
		sections = append(sections, knowledgeText)
	}
	return strings.Join(sections, "\n\n")
}

func (o *Orchestrator) knowledgeBranch(ctx context.Context, question string) string {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()
	ctx, finish := telemetry.StartSpan(ctx, "knowledge-branch")
	defer finish()
	result, err := o.retrieve.Retrieve(ctx, question)
	if err != nil {
		common.Logger().Warn("orchestrator: document retrieval failed", "error", err)
		return ""
	}
	if result.Context == "" {
		return ""
	}
	if result.Applied {
		return documentSectionHeader + "\n" + result.Context
	}
	return webSectionHeader + "\n" + result.Context
}

// sensorBranch builds structured-data context. Questions carrying a temporal
// marker take the today subset when a date column exists; otherwise the full
// dataset goes through constraint filtering, with semantic search over the
// sensor collection as the last resort for oversized matches.
func (o *Orchestrator) sensorBranch(ctx context.Context, question string) string {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BranchTimeout)
	defer cancel()
	ctx, finish := telemetry.StartSpan(ctx, "sensor-branch")
	defer finish()
	logger := common.Logger()
	records, err := o.loadRecords(ctx)
	if err != nil {
		logger.Warn("orchestrator: sensor data load failed", "error", err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}
	if hasTemporalMarker(question) {
		today, err := dataset.TodayRecords(records, o.now())
		switch {
		case err != nil:
			logger.Info("orchestrator: no date column, falling back to constraint filter")
		case len(today) == 0:
			logger.Info("orchestrator: no rows for today")
			return sensorSectionHeader + "\n" + temporalMarkerFallback
		default:
			return sensorSectionHeader + "\n" + dataset.SerializeRecords(today)
		}
	}
	filtered := dataset.Filter(records, question, o.registry)
	if len(filtered) > 0 && len(filtered) < o.cfg.MaxFilterRows {
		return sensorSectionHeader + "\n" + dataset.SerializeRecords(filtered)
	}
	logger.Info("orchestrator: filtered set too large, switching to semantic search",
		"filtered", len(filtered), "max", o.cfg.MaxFilterRows)
	return o.sensorSemanticSearch(ctx, question)
}

func (o *Orchestrator) loadRecords(ctx context.Context) ([]dataset.Record, error) {
	docs, err := o.store.GetAll(ctx, o.store.DataCollection())
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Document)
	}
	return dataset.ParseRecords(texts), nil
}

// sensorSemanticSearch queries the sensor collection with an expanding
// window. The window starts small, grows by a fixed factor per empty round,
// and stops at a hard cap; exhaustion yields an empty context.
func (o *Orchestrator) sensorSemanticSearch(ctx context.Context, question string) string {
	logger := common.Logger()
	vectors, err := o.provider.Embed(ctx, []string{question})
	if err != nil || len(vectors) == 0 {
		logger.Warn("orchestrator: sensor query embedding failed", "error", err)
		return ""
	}
	window := o.cfg.SensorWindowStart
	for {
		results, err := o.store.Query(ctx, o.store.DataCollection(), vectors[0], window)
		if err != nil {
			logger.Warn("orchestrator: sensor semantic search failed", "window", window, "error", err)
			return ""
		}
		if len(results) > 0 {
			lines := make([]string, 0, len(results))
			for _, result := range results {
				lines = append(lines, result.Document)
			}
			return sensorSectionHeader + "\n" + strings.Join(lines, "\n")
		}
		if window >= o.cfg.SensorWindowCap {
			logger.Info("orchestrator: sensor semantic search exhausted",
				"cap", o.cfg.SensorWindowCap, "elapsed", telemetry.SpanDuration(ctx))
			return ""
		}
		window *= o.cfg.SensorWindowGrowth
		if window > o.cfg.SensorWindowCap {
			window = o.cfg.SensorWindowCap
		}
	}
}

// WarmRegistry seeds the column registry from rows already in the sensor
// collection, so constraint extraction works across restarts.
func (o *Orchestrator) WarmRegistry(ctx context.Context) error {
	records, err := o.loadRecords(ctx)
	if err != nil {
		return fmt.Errorf("warm column registry: %w", err)
	}
	for _, record := range records {
		for column := range record {
			o.registry.Add(column)
		}
	}
	common.Logger().Info("orchestrator: column registry warmed",
		"records", len(records), "columns", o.registry.Len())
	return nil
}

func hasTemporalMarker(question string) bool {
	for _, marker := range temporalMarkers {
		if strings.Contains(question, marker) {
			return true
		}
	}
	return false
}
