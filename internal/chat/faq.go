// Package chat is the scripted FAQ widget. Answers come from a fixed table
// matched on normalized keywords; there is no model behind it.
package chat

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Greeting is sent when a conversation opens.
const Greeting = "¡Hola! Soy el asistente del spa. Preguntame por servicios, precios, horarios, reservas, cancelaciones o formas de pago."

// Fallback is the answer when nothing in the table matches.
const Fallback = "No tengo una respuesta para eso. Podés escribirnos por WhatsApp o llamarnos y te ayudamos."

// Entry is one canned answer. It matches when a word of the normalized
// question starts with any keyword, so "reserv" covers "reservar" but "hora"
// does not match "ahora". A multi-word keyword must match consecutive words.
type Entry struct {
	Topic    string
	Keywords []string
	Answer   string
}

// DefaultEntries is the spa's FAQ table. Entries are tried in order, so the
// more specific topics come first.
var DefaultEntries = []Entry{
	{
		Topic:    "cancelaciones",
		Keywords: []string{"cancel", "anular", "suspender"},
		Answer:   "Podés cancelar desde Mis turnos hasta 48 horas antes del turno.",
	},
	{
		Topic:    "pagos",
		Keywords: []string{"pago", "pagar", "tarjeta", "efectivo", "debito", "descuento"},
		Answer:   "Podés pagar en efectivo o con tarjeta de débito. Pagando con tarjeta con más de 48 horas de anticipación tenés un 15% de descuento.",
	},
	{
		Topic:    "horarios",
		Keywords: []string{"horario", "hora", "abren", "cierran", "atienden"},
		Answer:   "Atendemos todos los días de 9 a 18 hs. Los turnos son de 9 a 12 y de 14 a 17 hs.",
	},
	{
		Topic:    "reservas",
		Keywords: []string{"reserv", "turno", "agendar", "sacar"},
		Answer:   "Podés reservar desde la sección Servicios: elegí el servicio, la fecha y el horario. Los turnos se reservan con más de 48 horas de anticipación.",
	},
	{
		Topic:    "servicios",
		Keywords: []string{"servicio", "masaje", "facial", "tratamiento", "precio", "cuesta", "vale"},
		Answer:   "Ofrecemos masajes, tratamientos faciales y corporales. Los precios están en la sección Servicios.",
	},
	{
		Topic:    "ubicacion",
		Keywords: []string{"donde", "direccion", "ubicacion", "llegar"},
		Answer:   "Estamos en el centro de la ciudad. La dirección exacta está al pie de la página.",
	},
}

// Bot answers questions from a table.
type Bot struct {
	entries []Entry
}

// NewBot builds a bot over entries; nil uses DefaultEntries.
func NewBot(entries []Entry) *Bot {
	if entries == nil {
		entries = DefaultEntries
	}
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		kws := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			if nk := Normalize(k); nk != "" {
				kws = append(kws, nk)
			}
		}
		normalized[i] = Entry{Topic: e.Topic, Keywords: kws, Answer: e.Answer}
	}
	return &Bot{entries: normalized}
}

// Answer returns the first matching entry's answer and its topic, or the
// fallback with an empty topic.
func (b *Bot) Answer(question string) (answer, topic string) {
	words := words(Normalize(question))
	if len(words) == 0 {
		return Fallback, ""
	}
	for _, e := range b.entries {
		for _, k := range e.Keywords {
			if matchesKeyword(words, k) {
				return e.Answer, e.Topic
			}
		}
	}
	return Fallback, ""
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func matchesKeyword(question []string, keyword string) bool {
	kw := words(keyword)
	if len(kw) == 0 {
		return false
	}
	for i := 0; i+len(kw) <= len(question); i++ {
		ok := true
		for j, k := range kw {
			if !strings.HasPrefix(question[i+j], k) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Normalize lowercases s, strips accents and collapses whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
