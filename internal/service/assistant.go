package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fixgsm/fixgsm-server/internal/ai"
	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

const defaultSystemPrompt = "Ești asistentul unui service GSM. Răspunde concis, în limba română, " +
	"cu sfaturi practice despre diagnostic, reparații și comunicarea cu clienții."

// aiEntitlement checks the global switch, the subscription and the plan
func (s *Service) aiEntitlement(ctx context.Context, actor Actor) (*models.Tenant, error) {
	settings, err := s.platformSettings(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if !settings.AIGloballyEnabled {
		return nil, apperr.AIDisabled("globally by the platform administrator")
	}
	t, err := s.tenant(ctx, s.store, actor.TenantID)
	if err != nil {
		return nil, err
	}
	plan, err := planFor(ctx, s.store, t.SubscriptionPlan)
	if err != nil {
		return nil, err
	}
	if !plan.Limits.HasAI {
		return nil, apperr.AINotInPlan(t.SubscriptionPlan)
	}
	return t, nil
}

// CheckAI runs the full assistant gate and returns the tenant's config
func (s *Service) CheckAI(ctx context.Context, actor Actor) (*models.AIConfig, error) {
	t, err := s.aiEntitlement(ctx, actor)
	if err != nil {
		return nil, err
	}
	switch EffectiveStatus(t, s.now()) {
	case models.SubscriptionActive:
	case models.SubscriptionSuspended:
		return nil, apperr.SubscriptionSuspended()
	default:
		return nil, apperr.SubscriptionExpired()
	}
	if !t.AIEnabled {
		return nil, apperr.AIDisabled("for this service by the platform administrator")
	}
	cfg, err := s.aiConfig(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, apperr.AIDisabled("in the service settings")
	}
	return cfg, nil
}

func (s *Service) aiConfig(ctx context.Context, tenantID uuid.UUID) (*models.AIConfig, error) {
	cfg, err := s.store.GetAIConfig(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.AIConfig{TenantID: tenantID, Enabled: true, Temperature: 0.7}, nil
	}
	if err != nil {
		return nil, storeErr(err, "Configurația AI")
	}
	return cfg, nil
}

// GetAIConfig returns the assistant settings of the tenant. Only the global
// switch and the plan are checked so a disabled assistant can be re-enabled.
func (s *Service) GetAIConfig(ctx context.Context, actor Actor) (*models.AIConfig, error) {
	if _, err := s.aiEntitlement(ctx, actor); err != nil {
		return nil, err
	}
	return s.aiConfig(ctx, actor.TenantID)
}

// UpdateAIConfigRequest edits the assistant settings
type UpdateAIConfigRequest struct {
	Enabled      *bool    `json:"enabled"`
	SystemPrompt *string  `json:"system_prompt" validate:"max=4000"`
	Temperature  *float64 `json:"temperature" validate:"gte=0"`
}

// UpdateAIConfig changes the assistant settings
func (s *Service) UpdateAIConfig(ctx context.Context, actor Actor, req UpdateAIConfigRequest) (*models.AIConfig, error) {
	if err := requireOwner(actor); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if req.Temperature != nil && *req.Temperature > 2 {
		return nil, apperr.Validation("temperature trebuie să fie între 0 și 2")
	}
	if _, err := s.aiEntitlement(ctx, actor); err != nil {
		return nil, err
	}
	cfg, err := s.aiConfig(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.SystemPrompt != nil {
		cfg.SystemPrompt = strings.TrimSpace(*req.SystemPrompt)
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if err := s.store.SaveAIConfig(ctx, cfg); err != nil {
		return nil, storeErr(err, "Configurația AI")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.SettingsChanged,
		Category: "ai",
		Message:  fmt.Sprintf("Configurație AI actualizată (activ: %t)", cfg.Enabled),
	})
	return cfg, nil
}

// complete sends a request to the provider and maps its failures
func (s *Service) complete(ctx context.Context, actor Actor, endpoint string, cfg *models.AIConfig, messages []ai.Message) (*ai.Response, error) {
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	done := s.metrics.TrackAI(endpoint)
	resp, err := s.ai.Complete(ctx, ai.Request{
		Model:       s.cfg.AI.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   s.cfg.AI.MaxTokens,
		Temperature: cfg.Temperature,
	})
	done(err)

	if err != nil {
		var perr *ai.ProviderError
		switch {
		case errors.Is(err, ai.ErrNotConfigured):
			return nil, apperr.Unavailable("Asistentul AI nu este configurat pe server", err)
		case errors.As(err, &perr) && perr.IsRateLimited():
			return nil, apperr.Unavailable("Asistentul AI este ocupat. Încercați din nou în câteva momente.", err)
		default:
			log.Error().Err(err).Str("endpoint", endpoint).Str("tenant_id", actor.TenantID.String()).Msg("AI request failed")
			return nil, apperr.Unavailable("Asistentul AI nu răspunde momentan", err)
		}
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.AIRequest,
		Category: "ai",
		Message:  "Cerere asistent AI: " + endpoint,
		Data: models.Variables{
			"endpoint":      endpoint,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	})
	return resp, nil
}

// ChatRequest is one user message to the assistant
type ChatRequest struct {
	Message        string `json:"message" validate:"required,max=4000"`
	ConversationID string `json:"conversation_id"`
}

// ChatResponse carries the answer and the conversation it belongs to
type ChatResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Response       string    `json:"response"`
	Title          string    `json:"title"`
}

// Chat continues or starts a conversation. Messages are stored only when
// the provider answers.
func (s *Service) Chat(ctx context.Context, actor Actor, req ChatRequest) (*ChatResponse, error) {
	cfg, err := s.CheckAI(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Message)

	var conv *models.Conversation
	if req.ConversationID != "" {
		if conv, err = s.conversation(ctx, actor, req.ConversationID); err != nil {
			return nil, err
		}
	} else {
		conv = &models.Conversation{TenantID: actor.TenantID, UserID: actor.UserID, Title: title(text)}
	}

	history := conv.Messages
	if n := s.cfg.AI.HistorySize; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	messages := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: text})

	resp, err := s.complete(ctx, actor, "chat", cfg, messages)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conv.Messages = append(conv.Messages,
		models.ChatMessage{Role: models.ChatRoleUser, Content: text, CreatedAt: now},
		models.ChatMessage{Role: models.ChatRoleAssistant, Content: resp.Text, CreatedAt: now},
	)
	if conv.ID == uuid.Nil {
		err = s.store.CreateConversation(ctx, conv)
	} else {
		err = s.store.UpdateConversation(ctx, conv)
	}
	if err != nil {
		return nil, storeErr(err, "Conversația")
	}
	return &ChatResponse{ConversationID: conv.ID, Response: resp.Text, Title: conv.Title}, nil
}

func title(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return string(runes)
}

// conversation loads a conversation owned by the actor
func (s *Service) conversation(ctx context.Context, actor Actor, raw string) (*models.Conversation, error) {
	id, err := parseID(raw, "Conversația")
	if err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, actor.TenantID, id)
	if err != nil {
		return nil, storeErr(err, "Conversația")
	}
	if conv.UserID != actor.UserID {
		return nil, apperr.NotFound("Conversația")
	}
	return conv, nil
}

// ListConversations returns the actor's conversations, most recent first
func (s *Service) ListConversations(ctx context.Context, actor Actor) ([]*models.Conversation, error) {
	if _, err := s.CheckAI(ctx, actor); err != nil {
		return nil, err
	}
	list, err := s.store.ListConversations(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "Conversația")
	}
	if list == nil {
		list = []*models.Conversation{}
	}
	return list, nil
}

// GetConversation returns one conversation with its messages
func (s *Service) GetConversation(ctx context.Context, actor Actor, id string) (*models.Conversation, error) {
	if _, err := s.CheckAI(ctx, actor); err != nil {
		return nil, err
	}
	return s.conversation(ctx, actor, id)
}

// DeleteConversation removes one of the actor's conversations
func (s *Service) DeleteConversation(ctx context.Context, actor Actor, id string) error {
	if _, err := s.CheckAI(ctx, actor); err != nil {
		return err
	}
	conv, err := s.conversation(ctx, actor, id)
	if err != nil {
		return err
	}
	return storeErr(s.store.DeleteConversation(ctx, actor.TenantID, conv.ID), "Conversația")
}

// Message kinds the assistant can draft for a client
const (
	MessageKindStatus = "status"
	MessageKindReady  = "ready"
	MessageKindDelay  = "delay"
	MessageKindQuote  = "quote"
)

// GenerateMessageRequest asks for a client notification draft
type GenerateMessageRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Kind     string `json:"kind" validate:"oneof=status ready delay quote"`
	Notes    string `json:"notes" validate:"max=1000"`
}

// GeneratedMessage is a draft SMS/WhatsApp text
type GeneratedMessage struct {
	TicketID string `json:"ticket_id"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

var messageGoals = map[string]string{
	MessageKindStatus: "informează clientul despre stadiul actual al reparației",
	MessageKindReady:  "anunță clientul că dispozitivul este gata de ridicare",
	MessageKindDelay:  "anunță politicos o întârziere a reparației",
	MessageKindQuote:  "prezintă costul estimat și cere acordul clientului",
}

// GenerateMessage drafts a client message about a ticket
func (s *Service) GenerateMessage(ctx context.Context, actor Actor, req GenerateMessageRequest) (*GeneratedMessage, error) {
	cfg, err := s.CheckAI(ctx, actor)
	if err != nil {
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = MessageKindStatus
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	ticket, err := s.GetTicket(ctx, actor, req.TicketID)
	if err != nil {
		return nil, err
	}
	t, err := s.tenant(ctx, s.store, actor.TenantID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scrie un mesaj scurt (SMS) care %s.\n", messageGoals[req.Kind])
	fmt.Fprintf(&b, "Service: %s\n", t.ServiceName)
	fmt.Fprintf(&b, "Client: %s\n", ticket.ClientName)
	fmt.Fprintf(&b, "Fișa: %s\n", ticket.ID)
	fmt.Fprintf(&b, "Dispozitiv: %s\n", ticket.DeviceModel)
	fmt.Fprintf(&b, "Problemă raportată: %s\n", ticket.ReportedIssue)
	fmt.Fprintf(&b, "Status: %s\n", ticket.Status)
	if !ticket.EstimatedCost.IsZero() {
		fmt.Fprintf(&b, "Cost estimat: %s RON\n", ticket.EstimatedCost.StringFixed(2))
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		fmt.Fprintf(&b, "Observații: %s\n", notes)
	}
	b.WriteString("Răspunde doar cu textul mesajului.")

	resp, err := s.complete(ctx, actor, "generate-message", cfg, []ai.Message{{Role: ai.RoleUser, Content: b.String()}})
	if err != nil {
		return nil, err
	}
	return &GeneratedMessage{TicketID: ticket.ID, Kind: req.Kind, Message: strings.TrimSpace(resp.Text)}, nil
}

// TicketStatistics summarizes a tenant's tickets
type TicketStatistics struct {
	TotalTickets int64                           `json:"total_tickets"`
	Urgent       int64                           `json:"urgent"`
	ByCategory   map[models.StatusCategory]int64 `json:"by_category"`
	ByStatus     map[string]int64                `json:"by_status"`
	ByLocation   map[string]int64                `json:"by_location"`
	TopDevices   []DeviceCount                   `json:"top_devices"`
	Revenue      decimal.Decimal                 `json:"revenue"`
	AverageCost  decimal.Decimal                 `json:"average_cost"`
}

// DeviceCount is a device model with its ticket count
type DeviceCount struct {
	DeviceModel string `json:"device_model"`
	Count       int64  `json:"count"`
}

// TicketStatistics computes counters over every ticket of the tenant.
// Revenue sums the estimated cost of final tickets that were not lost.
func (s *Service) TicketStatistics(ctx context.Context, actor Actor) (*TicketStatistics, error) {
	tickets, _, err := s.ListTickets(ctx, actor, TicketQuery{})
	if err != nil {
		return nil, err
	}
	statuses, err := s.store.ListStatuses(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Statusul")
	}
	locations, err := s.store.ListLocations(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Locația")
	}
	locationNames := make(map[uuid.UUID]string, len(locations))
	for _, l := range locations {
		locationNames[l.ID] = l.Name
	}

	stats := &TicketStatistics{
		TotalTickets: int64(len(tickets)),
		ByCategory:   make(map[models.StatusCategory]int64),
		ByStatus:     make(map[string]int64),
		ByLocation:   make(map[string]int64),
		Revenue:      decimal.Zero,
		AverageCost:  decimal.Zero,
	}
	devices := make(map[string]int64)
	total := decimal.Zero
	for _, t := range tickets {
		if t.Urgent {
			stats.Urgent++
		}
		stats.ByStatus[t.Status]++
		if name, ok := locationNames[t.LocationID]; ok {
			stats.ByLocation[name]++
		}
		devices[strings.TrimSpace(t.DeviceModel)]++
		total = total.Add(t.EstimatedCost)

		if st := findStatus(statuses, t.Status); st != nil {
			stats.ByCategory[st.Category]++
			if st.IsFinal && st.Category != models.CategoryLost {
				stats.Revenue = stats.Revenue.Add(t.EstimatedCost)
			}
		}
	}
	if len(tickets) > 0 {
		stats.AverageCost = total.Div(decimal.NewFromInt(int64(len(tickets)))).Round(2)
	}

	for model, n := range devices {
		stats.TopDevices = append(stats.TopDevices, DeviceCount{DeviceModel: model, Count: n})
	}
	sort.Slice(stats.TopDevices, func(i, j int) bool {
		a, b := stats.TopDevices[i], stats.TopDevices[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.DeviceModel < b.DeviceModel
	})
	if len(stats.TopDevices) > 5 {
		stats.TopDevices = stats.TopDevices[:5]
	}
	return stats, nil
}

// AnalyzeStatisticsRequest optionally focuses the analysis
type AnalyzeStatisticsRequest struct {
	Question string `json:"question" validate:"max=1000"`
}

// StatisticsAnalysis is the computed summary with the assistant's reading
type StatisticsAnalysis struct {
	Statistics *TicketStatistics `json:"statistics"`
	Analysis   string            `json:"analysis"`
}

// AnalyzeStatistics sends the ticket statistics to the assistant
func (s *Service) AnalyzeStatistics(ctx context.Context, actor Actor, req AnalyzeStatisticsRequest) (*StatisticsAnalysis, error) {
	cfg, err := s.CheckAI(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	stats, err := s.TicketStatistics(ctx, actor)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Analizează statisticile service-ului și oferă 3-5 recomandări concrete.\n")
	fmt.Fprintf(&b, "Total fișe: %d (urgente: %d)\n", stats.TotalTickets, stats.Urgent)
	for _, c := range models.StatusCategories {
		if n := stats.ByCategory[c]; n > 0 {
			fmt.Fprintf(&b, "%s: %d\n", c.Label(), n)
		}
	}
	for name, n := range stats.ByLocation {
		fmt.Fprintf(&b, "Locația %s: %d fișe\n", name, n)
	}
	for _, d := range stats.TopDevices {
		fmt.Fprintf(&b, "Dispozitiv %s: %d\n", d.DeviceModel, d.Count)
	}
	fmt.Fprintf(&b, "Venit din fișe finalizate: %s RON, cost mediu: %s RON\n",
		stats.Revenue.StringFixed(2), stats.AverageCost.StringFixed(2))
	if q := strings.TrimSpace(req.Question); q != "" {
		fmt.Fprintf(&b, "Întrebare: %s\n", q)
	}

	resp, err := s.complete(ctx, actor, "analyze-statistics", cfg, []ai.Message{{Role: ai.RoleUser, Content: b.String()}})
	if err != nil {
		return nil, err
	}
	return &StatisticsAnalysis{Statistics: stats, Analysis: strings.TrimSpace(resp.Text)}, nil
}
