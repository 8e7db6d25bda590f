package prompt

import "strings"

// Persona selects one of the closed set of system instruction profiles.
type Persona string

const (
	PersonaDefault  Persona = "Default"
	PersonaExpert   Persona = "Expert"
	PersonaCreative Persona = "Creative"
)

var personaInstructions = map[Persona]string{
	PersonaDefault: "You are a friendly and helpful AI assistant, providing clear, concise, and accurate responses. " +
		"Focus on being approachable and ensuring the user feels understood and supported.",
	PersonaExpert: "You are a highly knowledgeable and authoritative expert across various fields. " +
		"Offer in-depth, precise, and technical explanations, citing examples or relevant research when necessary. " +
		"Avoid jargon when possible, but feel free to introduce advanced concepts where appropriate.",
	PersonaCreative: "You are an imaginative and inventive AI with a flair for creative problem-solving and thinking outside the box. " +
		"Use metaphors, vivid descriptions, and unconventional ideas to inspire and captivate the user. " +
		"Feel free to suggest unique approaches or surprising solutions to problems.",
}

// ParsePersona resolves a client-supplied persona name. Unknown names fall
// back to Default so bad input never fails a turn.
func ParsePersona(s string) Persona {
	switch Persona(strings.TrimSpace(s)) {
	case PersonaExpert:
		return PersonaExpert
	case PersonaCreative:
		return PersonaCreative
	default:
		return PersonaDefault
	}
}

// Instruction returns the system instruction text for the persona.
func (p Persona) Instruction() string {
	if text, ok := personaInstructions[p]; ok {
		return text
	}
	return personaInstructions[PersonaDefault]
}

// Personas returns the advertised persona names.
func Personas() []string {
	return []string{string(PersonaDefault), string(PersonaExpert), string(PersonaCreative)}
}
