package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"www.github.com/Wanderer0074348/RoastRouter/src/budget"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/router"
)

const carefulTone = "The user is reporting that something is broken or not working. " +
	"Be calm and empathetic, skip the jokes, and give clear next steps."

// ErrEmptyMessage is returned for a blank chat message.
var ErrEmptyMessage = errors.New("message is empty")

type Classifier interface {
	Classify(ctx context.Context, message string) models.Classification
}

type ContextAssembler interface {
	Assemble(ctx context.Context, userID string) (*models.AssembledContext, error)
}

type Dispatcher interface {
	Route(ctx context.Context, intent models.Intent, assembled *models.AssembledContext, message string) (*models.RouteResult, error)
}

type BudgetGate interface {
	Admit(ctx context.Context, userID string) error
	Record(ctx context.Context, userID string, usage models.TokenUsage, cost float64) error
	TruncateHistory(history []models.ChatMessage) []models.ChatMessage
}

type RoutingLogger interface {
	Log(entry *models.RoutingLogEntry)
}

// Pipeline runs one chat message through admission, classification,
// context assembly, dispatch, billing and telemetry.
type Pipeline struct {
	budget     BudgetGate
	classifier Classifier
	assembler  ContextAssembler
	router     Dispatcher
	telemetry  RoutingLogger
	history    models.HistoryStore // optional
}

func NewPipeline(
	gate BudgetGate,
	classifier Classifier,
	assembler ContextAssembler,
	dispatcher Dispatcher,
	telemetry RoutingLogger,
	history models.HistoryStore,
) *Pipeline {
	return &Pipeline{
		budget:     gate,
		classifier: classifier,
		assembler:  assembler,
		router:     dispatcher,
		telemetry:  telemetry,
		history:    history,
	}
}

// Handle returns *budget.AdmissionDenied when the user is over a limit and
// *router.DispatchError when the backend failed. Once a call is dispatched
// its usage is recorded even if ctx is cancelled.
func (p *Pipeline) Handle(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	log := logger.ForUser(userID)

	if err := p.budget.Admit(ctx, userID); err != nil {
		log.WithError(err).Info("Chat request denied")
		return nil, err
	}

	classification := p.classifier.Classify(ctx, message)
	log = log.WithFields(logrus.Fields{
		"intent":            classification.Intent,
		"classifier_source": classification.Source,
		"confidence":        classification.Confidence,
	})

	assembled := &models.AssembledContext{}
	if req.IncludeContext {
		built, err := p.assembler.Assemble(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("Context assembly failed, continuing without context")
		} else {
			assembled = built
		}
	}

	prompt := p.composeMessage(ctx, userID, classification.Intent, message)

	// Billing must survive a client disconnect once the backend is called.
	billingCtx := context.WithoutCancel(ctx)

	result, err := p.router.Route(billingCtx, classification.Intent, assembled, prompt)

	entry := &models.RoutingLogEntry{
		UserID:           userID,
		Intent:           classification.Intent,
		Timestamp:        time.Now().UTC(),
		Degraded:         assembled.Degraded,
		ClassifierSource: classification.Source,
		Confidence:       classification.Confidence,
		Success:          err == nil,
	}

	var (
		usage models.TokenUsage
		cost  float64
	)
	if err != nil {
		var dispatchErr *router.DispatchError
		if errors.As(err, &dispatchErr) {
			usage, cost = dispatchErr.Usage, dispatchErr.Cost
			entry.ModelID = dispatchErr.ModelID
			entry.LatencyMs = dispatchErr.LatencyMs
			entry.ErrorKind = string(dispatchErr.Kind)
		} else {
			entry.ErrorKind = string(router.DispatchProviderError)
		}
	} else {
		usage, cost = result.Usage, result.Cost
		entry.ModelID = result.ModelID
		entry.LatencyMs = result.LatencyMs
	}

	if recErr := p.budget.Record(billingCtx, userID, usage, cost); recErr != nil {
		log.WithError(recErr).Warn("Failed to persist usage")
	}

	entry.InputTokens = usage.Input
	entry.OutputTokens = usage.Output
	entry.CachedTokens = usage.Cached
	entry.CostUSD = cost
	p.telemetry.Log(entry)

	if err != nil {
		log.WithError(err).Error("Model dispatch failed")
		return nil, err
	}

	if p.history != nil {
		now := time.Now()
		if histErr := p.history.Append(billingCtx, userID,
			models.ChatMessage{Role: "user", Content: message, Timestamp: now},
			models.ChatMessage{Role: "assistant", Content: result.Text, Timestamp: now},
		); histErr != nil {
			log.WithError(histErr).Warn("Failed to save conversation history")
		}
	}

	log.WithFields(logrus.Fields{
		"model":      result.ModelID,
		"cost_usd":   result.Cost,
		"latency_ms": result.LatencyMs,
	}).Info("Chat request completed")

	return &models.ChatResponse{
		Message:    result.Text,
		Model:      result.ModelID,
		Intent:     string(classification.Intent),
		TokensUsed: result.Usage,
		Cost:       result.Cost,
		LatencyMs:  result.LatencyMs,
	}, nil
}

// composeMessage puts the trimmed conversation history and any tone
// instruction ahead of the user's message. It all sits after the cacheable
// context prefix.
func (p *Pipeline) composeMessage(ctx context.Context, userID string, intent models.Intent, message string) string {
	var b strings.Builder

	if p.history != nil {
		history, err := p.history.Recent(ctx, userID)
		if err != nil {
			logger.ForUser(userID).WithError(err).Warn("Failed to load conversation history")
		}
		if len(history) > 0 {
			trimmed := p.budget.TruncateHistory(history)
			logger.ForUser(userID).WithFields(logrus.Fields{
				"turns":      len(trimmed),
				"dropped":    len(history) - len(trimmed),
				"est_tokens": budget.HistoryTokens(trimmed),
			}).Debug("Loaded conversation history")
			b.WriteString(FormatHistory(trimmed))
			b.WriteString("\n")
		}
	}

	if intent == models.IntentSensitive {
		b.WriteString(carefulTone)
		b.WriteString("\n\n")
	}

	b.WriteString(message)
	return b.String()
}
