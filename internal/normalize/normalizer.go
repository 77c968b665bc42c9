// Package normalize converts raw analyzer payloads into the canonical
// EmailAnalysis record. Analyzer output shapes have drifted over time
// between snake_case and camelCase keys and between single- and multi-value
// fields; this package is the only place in the system that tolerates both.
// Everything downstream works against the typed model.
package normalize

import (
	"encoding/json"
	"time"

	"github.com/sortdesk/mailpilot/internal/model"
)

// Normalize maps one persisted or freshly produced raw analysis row to its
// canonical form. It is pure: no side effects, no errors, identical output
// for identical input. Unknown fields are ignored, absent fields default to
// neutral values, and absent slots stay nil.
func Normalize(row *model.RawAnalysisRow) *model.EmailAnalysis {
	a := &model.EmailAnalysis{
		EmailID:         row.EmailID,
		TotalTokens:     row.TotalTokens,
		ProcessingMS:    row.ProcessingMS,
		AnalyzerVersion: row.AnalyzerVersion,
		AnalyzedAt:      row.AnalyzedAt,
	}

	if p := slot(row, model.SlotCategorization); p != nil {
		a.Categorization = normalizeCategorization(p)
	}
	if p := slot(row, model.SlotActions); p != nil {
		a.Actions = normalizeActions(p)
	}
	if p := slot(row, model.SlotRelationship); p != nil {
		a.Relationship = normalizeRelationship(p)
	}
	if p := slot(row, model.SlotEvent); p != nil {
		a.Event = normalizeEvent(p)
	}
	if p := slot(row, model.SlotEvents); p != nil {
		a.Events = normalizeEvents(p)
	}
	if p := slot(row, model.SlotDates); p != nil {
		a.Dates = normalizeDates(p)
	}
	if p := slot(row, model.SlotDigest); p != nil {
		a.Digest = normalizeDigest(p)
	}
	if p := slot(row, model.SlotIdeas); p != nil {
		a.Ideas = normalizeIdeas(p)
	}
	if p := slot(row, model.SlotInsights); p != nil {
		a.Insights = normalizeInsights(p)
	}
	if p := slot(row, model.SlotNews); p != nil {
		a.News = normalizeNews(p)
	}

	return a
}

func slot(row *model.RawAnalysisRow, name string) payload {
	raw, ok := row.Slots[name]
	if !ok || len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		// Unparseable payloads behave like absent slots.
		return nil
	}
	return payload(m)
}

func normalizeCategorization(p payload) *model.Categorization {
	return &model.Categorization{
		Category:        p.str("category"),
		SignalStrength:  normalizeSignal(p),
		ReplyWorthiness: normalizeReply(p),
		QuickAction:     p.str("quick_action", "quickAction"),
		Summary:         p.str("summary"),
		Confidence:      p.num("confidence"),
		Reasoning:       p.str("reasoning"),
	}
}

func normalizeSignal(p payload) model.SignalStrength {
	// "importance" predates the signal_strength rename.
	switch model.SignalStrength(p.str("signal_strength", "signalStrength", "importance")) {
	case model.SignalHigh:
		return model.SignalHigh
	case model.SignalMedium:
		return model.SignalMedium
	case model.SignalNoise:
		return model.SignalNoise
	default:
		return model.SignalLow
	}
}

func normalizeReply(p payload) model.ReplyWorthiness {
	switch model.ReplyWorthiness(p.str("reply_worthiness", "replyWorthiness")) {
	case model.ReplyUrgent:
		return model.ReplyUrgent
	case model.ReplyNeeded:
		return model.ReplyNeeded
	case model.ReplyOptional:
		return model.ReplyOptional
	case model.ReplyNone:
		return model.ReplyNone
	}
	// Oldest payloads carried a boolean needs_reply instead.
	if p.boolean("needs_reply", "needsReply") {
		return model.ReplyNeeded
	}
	return model.ReplyNone
}

func normalizeActions(p payload) *model.ActionExtraction {
	out := &model.ActionExtraction{Actions: []model.EmailAction{}}

	for _, item := range p.objects("actions", "actionItems", "action_items") {
		out.Actions = append(out.Actions, model.EmailAction{
			Type:     item.str("type", "actionType", "action_type"),
			Title:    item.str("title", "actionTitle", "action_title"),
			Deadline: item.date("deadline", "dueDate", "due_date"),
			Priority: item.str("priority"),
			Notes:    item.str("notes", "description"),
		})
	}

	// Legacy rows stored a single action in flat top-level fields.
	if len(out.Actions) == 0 {
		if title := p.str("action_title", "actionTitle"); title != "" {
			out.Actions = append(out.Actions, model.EmailAction{
				Type:     p.str("action_type", "actionType"),
				Title:    title,
				Deadline: p.date("action_deadline", "actionDeadline"),
				Priority: p.str("action_priority", "actionPriority"),
			})
		}
	}

	idx := int(p.num("primary_action_index", "primaryActionIndex"))
	if idx < 0 || idx >= len(out.Actions) {
		idx = 0
	}
	out.PrimaryIndex = idx

	return out
}

func normalizeRelationship(p payload) *model.RelationshipTag {
	return &model.RelationshipTag{
		Client:       p.str("client", "clientName", "client_name"),
		Relationship: p.str("relationship", "relationshipType", "relationship_type"),
		IsVIP:        p.boolean("is_vip", "isVip", "vip"),
		Confidence:   p.num("confidence"),
	}
}

func normalizeDetectedEvent(p payload) model.DetectedEvent {
	return model.DetectedEvent{
		Title:    p.str("title", "eventTitle", "event_title"),
		StartsAt: p.date("starts_at", "startsAt", "start_time", "startTime"),
		EndsAt:   p.date("ends_at", "endsAt", "end_time", "endTime"),
		Location: p.str("location"),
		AllDay:   p.boolean("all_day", "allDay"),
	}
}

func normalizeEvent(p payload) *model.EventDetection {
	return &model.EventDetection{
		HasEvent: p.boolean("has_event", "hasEvent", "is_event", "isEvent"),
		Event:    normalizeDetectedEvent(p),
	}
}

func normalizeEvents(p payload) *model.MultiEventDetection {
	out := &model.MultiEventDetection{Events: []model.DetectedEvent{}}
	for _, ev := range p.objects("events") {
		out.Events = append(out.Events, normalizeDetectedEvent(ev))
	}
	return out
}

func normalizeDates(p payload) *model.DateExtraction {
	out := &model.DateExtraction{Dates: []model.DateMention{}}
	for _, d := range p.objects("dates", "extracted_dates", "extractedDates") {
		at := d.date("date")
		if at == nil {
			continue
		}
		out.Dates = append(out.Dates, model.DateMention{
			Date:    *at,
			Kind:    d.str("kind", "type"),
			Context: d.str("context"),
		})
	}
	return out
}

func normalizeDigest(p payload) *model.ContentDigest {
	out := &model.ContentDigest{
		Gist:      p.str("gist", "tldr"),
		KeyPoints: p.strings("key_points", "keyPoints"),
		Links:     []model.EmailLink{},
	}
	for _, l := range p.objects("links") {
		out.Links = append(out.Links, model.EmailLink{
			URL:   l.str("url"),
			Label: l.str("label", "text"),
			Kind:  l.str("kind", "type"),
		})
	}
	return out
}

func normalizeIdeas(p payload) *model.IdeaSparks {
	out := &model.IdeaSparks{Sparks: []model.IdeaSpark{}}
	for _, s := range p.objects("sparks", "ideas", "idea_sparks", "ideaSparks") {
		out.Sparks = append(out.Sparks, model.IdeaSpark{
			Title: s.str("title"),
			Note:  s.str("note", "description"),
		})
	}
	// Some versions emitted ideas as a bare string list.
	if len(out.Sparks) == 0 {
		for _, s := range p.strings("sparks", "ideas") {
			out.Sparks = append(out.Sparks, model.IdeaSpark{Title: s})
		}
	}
	return out
}

func normalizeInsights(p payload) *model.InsightExtraction {
	return &model.InsightExtraction{
		Insights: p.strings("insights"),
		Themes:   p.strings("themes"),
	}
}

func normalizeNews(p payload) *model.NewsBrief {
	return &model.NewsBrief{
		Headline: p.str("headline", "title"),
		Summary:  p.str("summary"),
		Topics:   p.strings("topics"),
	}
}

// payload is one decoded slot object. Lookup helpers take keys in
// preference order: current name first, legacy aliases after.
type payload map[string]any

func (p payload) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func (p payload) boolean(keys ...string) bool {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return false
}

func (p payload) num(keys ...string) float64 {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}

func (p payload) strings(keys ...string) []string {
	for _, k := range keys {
		v, ok := p[k]
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{}
}

func (p payload) objects(keys ...string) []payload {
	for _, k := range keys {
		v, ok := p[k]
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]payload, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, payload(m))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (p payload) date(keys ...string) *time.Time {
	for _, k := range keys {
		v, ok := p[k]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return &t
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return &t
		}
	}
	return nil
}
