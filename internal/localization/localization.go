// Package localization renders the channel-appropriate escalation notice
// the Escalation post-hook substitutes for `answer` when a message is
// routed to a human (spec §6, "Localized escalation notice format").
package localization

import "strings"

// channelCategory buckets a channel.Type string down to one of the four
// template categories the table is keyed on; unknown channels fall back to
// "generic".
func channelCategory(ch string) string {
	switch ch {
	case "web":
		return "web"
	case "federated":
		return "matrix-like"
	case "trading-app":
		return "trading-app"
	default:
		return "generic"
	}
}

// normalizeLang strips a region suffix (e.g. "en-US" -> "en") and
// lowercases, falling back to "en" for anything not in the table.
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if _, ok := templates[lang]; !ok {
		return "en"
	}
	return lang
}

// templates[lang][channelCategory] is the escalation notice with
// {support_handle} and {escalation_id} placeholders.
var templates = map[string]map[string]string{
	"en": {
		"generic":     "Your question has been forwarded to our support team. They'll follow up with {support_handle} shortly. (Reference: #{escalation_id})",
		"web":         "We've forwarded your question to a human agent. You'll see their reply here shortly. (Reference: #{escalation_id})",
		"matrix-like": "Your question has been escalated to {support_handle}. They'll reply in this conversation. (Reference: #{escalation_id})",
		"trading-app": "This looks like it needs a specialist. {support_handle} has been notified and will reply here. (Reference: #{escalation_id})",
	},
	"de": {
		"generic":     "Ihre Frage wurde an unser Support-Team weitergeleitet. {support_handle} meldet sich in Kürze. (Referenz: #{escalation_id})",
		"web":         "Wir haben Ihre Frage an einen Mitarbeiter weitergeleitet. Die Antwort erscheint hier in Kürze. (Referenz: #{escalation_id})",
		"matrix-like": "Ihre Frage wurde an {support_handle} eskaliert. Die Antwort erfolgt in dieser Unterhaltung. (Referenz: #{escalation_id})",
		"trading-app": "Das erfordert einen Spezialisten. {support_handle} wurde benachrichtigt und antwortet hier. (Referenz: #{escalation_id})",
	},
	"es": {
		"generic":     "Tu pregunta ha sido remitida a nuestro equipo de soporte. {support_handle} te responderá pronto. (Referencia: #{escalation_id})",
		"web":         "Hemos remitido tu pregunta a un agente humano. Verás su respuesta aquí en breve. (Referencia: #{escalation_id})",
		"matrix-like": "Tu pregunta ha sido escalada a {support_handle}. Responderán en esta conversación. (Referencia: #{escalation_id})",
		"trading-app": "Esto parece requerir un especialista. Se ha notificado a {support_handle}, que responderá aquí. (Referencia: #{escalation_id})",
	},
	"fr": {
		"generic":     "Votre question a été transmise à notre équipe d'assistance. {support_handle} vous répondra bientôt. (Référence : #{escalation_id})",
		"web":         "Nous avons transmis votre question à un agent humain. Sa réponse apparaîtra ici sous peu. (Référence : #{escalation_id})",
		"matrix-like": "Votre question a été escaladée à {support_handle}. La réponse arrivera dans cette conversation. (Référence : #{escalation_id})",
		"trading-app": "Ceci semble nécessiter un spécialiste. {support_handle} a été notifié et répondra ici. (Référence : #{escalation_id})",
	},
}

// FormatEscalationMessage renders the escalation notice for ch/lang,
// falling back to English and to the "generic" category when the channel
// has no dedicated template.
func FormatEscalationMessage(ch, lang, username, escalationID, supportHandle string) string {
	lang = normalizeLang(lang)
	category := channelCategory(ch)

	byCategory, ok := templates[lang][category]
	if !ok {
		byCategory = templates[lang]["generic"]
	}
	if supportHandle == "" {
		supportHandle = "our support team"
	}

	msg := strings.ReplaceAll(byCategory, "{support_handle}", supportHandle)
	msg = strings.ReplaceAll(msg, "{escalation_id}", escalationID)
	return msg
}
