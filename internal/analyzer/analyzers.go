package analyzer

import (
	"fmt"
	"strings"

	"github.com/sortdesk/mailpilot/internal/model"
)

// Analyzer is one independent content-understanding unit. Analyzers never
// see each other's output; each builds its own prompt from the same email
// and user context.
type Analyzer struct {
	Slot   string
	Prompt func(e *model.Email, uc *model.UserContext) string
}

// DefaultAnalyzers returns the fixed, ordered analyzer set. The order is
// stable for logging and stats; execution is concurrent.
func DefaultAnalyzers() []Analyzer {
	return []Analyzer{
		{Slot: model.SlotCategorization, Prompt: categorizationPrompt},
		{Slot: model.SlotActions, Prompt: actionsPrompt},
		{Slot: model.SlotRelationship, Prompt: relationshipPrompt},
		{Slot: model.SlotEvent, Prompt: eventPrompt},
		{Slot: model.SlotEvents, Prompt: eventsPrompt},
		{Slot: model.SlotDates, Prompt: datesPrompt},
		{Slot: model.SlotDigest, Prompt: digestPrompt},
		{Slot: model.SlotIdeas, Prompt: ideasPrompt},
		{Slot: model.SlotInsights, Prompt: insightsPrompt},
		{Slot: model.SlotNews, Prompt: newsPrompt},
	}
}

func emailBlock(e *model.Email) string {
	return fmt.Sprintf("From: %s <%s>\nSubject: %s\nDate: %s\n\n%s",
		e.Sender, e.SenderEmail, e.Subject, e.ReceivedAt.Format("2006-01-02 15:04"), e.Body)
}

func contextBlock(uc *model.UserContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recipient role: %s\n", uc.Role)
	if len(uc.Priorities) > 0 {
		fmt.Fprintf(&b, "Current priorities: %s\n", strings.Join(uc.Priorities, ", "))
	}
	if len(uc.Clients) > 0 {
		fmt.Fprintf(&b, "Known clients: %s\n", strings.Join(uc.Clients, ", "))
	}
	if len(uc.VIPEmails) > 0 {
		fmt.Fprintf(&b, "VIP senders: %s\n", strings.Join(uc.VIPEmails, ", "))
	}
	if len(uc.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(uc.Interests, ", "))
	}
	return b.String()
}

func categorizationPrompt(e *model.Email, uc *model.UserContext) string {
	return fmt.Sprintf(`Categorize this email for triage.

%s
Email:
%s

Return JSON:
{
  "category": "work|personal|finance|newsletter|promotion|notification|other",
  "signal_strength": "high|medium|low|noise",
  "reply_worthiness": "urgent|needed|optional|none",
  "quick_action": "respond|review|calendar|archive|none",
  "summary": "one sentence",
  "confidence": 0.0,
  "reasoning": "brief"
}`, contextBlock(uc), emailBlock(e))
}

func actionsPrompt(e *model.Email, uc *model.UserContext) string {
	return fmt.Sprintf(`Extract every concrete action this email asks of the recipient.

%s
Email:
%s

Return JSON:
{
  "actions": [
    {"type": "reply|task|decision|payment|schedule", "title": "...", "deadline": "YYYY-MM-DD or null", "priority": "high|medium|low", "notes": "..."}
  ],
  "primary_action_index": 0
}
Return an empty "actions" list when nothing is asked.`, contextBlock(uc), emailBlock(e))
}

func relationshipPrompt(e *model.Email, uc *model.UserContext) string {
	return fmt.Sprintf(`Identify the sender's relationship to the recipient.

%s
Email:
%s

Return JSON:
{"client": "matched client name or empty", "relationship": "client|colleague|vendor|personal|automated|unknown", "is_vip": false, "confidence": 0.0}`,
		contextBlock(uc), emailBlock(e))
}

func eventPrompt(e *model.Email, _ *model.UserContext) string {
	return fmt.Sprintf(`Does this email describe a single schedulable event?

Email:
%s

Return JSON:
{"has_event": false, "title": "", "starts_at": "RFC3339 or null", "ends_at": "RFC3339 or null", "location": "", "all_day": false}`,
		emailBlock(e))
}

func eventsPrompt(e *model.Email, _ *model.UserContext) string {
	return fmt.Sprintf(`List every distinct schedulable event in this email.

Email:
%s

Return JSON:
{"events": [{"title": "", "starts_at": "RFC3339 or null", "ends_at": "RFC3339 or null", "location": "", "all_day": false}]}`,
		emailBlock(e))
}

func datesPrompt(e *model.Email, _ *model.UserContext) string {
	return fmt.Sprintf(`Extract every date or deadline mentioned in this email.

Email:
%s

Return JSON:
{"dates": [{"date": "YYYY-MM-DD", "kind": "deadline|meeting|reminder|other", "context": "surrounding phrase"}]}`,
		emailBlock(e))
}

func digestPrompt(e *model.Email, _ *model.UserContext) string {
	return fmt.Sprintf(`Digest this email.

Email:
%s

Return JSON:
{"gist": "two sentences max", "key_points": ["..."], "links": [{"url": "", "label": "", "kind": "article|doc|tool|unsubscribe|other"}]}`,
		emailBlock(e))
}

func ideasPrompt(e *model.Email, uc *model.UserContext) string {
	return fmt.Sprintf(`Suggest ideas or follow-ups this email could spark for the recipient.

%s
Email:
%s

Return JSON:
{"sparks": [{"title": "", "note": ""}]}
Return an empty list when nothing stands out.`, contextBlock(uc), emailBlock(e))
}

func insightsPrompt(e *model.Email, uc *model.UserContext) string {
	return fmt.Sprintf(`Extract noteworthy insights and recurring themes from this email, relative to the recipient's interests.

%s
Email:
%s

Return JSON:
{"insights": ["..."], "themes": ["..."]}`, contextBlock(uc), emailBlock(e))
}

func newsPrompt(e *model.Email, uc *model.UserContext) string {
	return fmt.Sprintf(`If this email is a newsletter or news digest, brief it. Otherwise return empty fields.

%s
Email:
%s

Return JSON:
{"headline": "", "summary": "", "topics": ["..."]}`, contextBlock(uc), emailBlock(e))
}
