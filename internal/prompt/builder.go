// Package prompt assembles the bounded context window sent to the
// completion provider.
package prompt

// Role tags a turn in the assembled prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry of the assembled prompt.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Exchange is one stored human/AI pair from session history.
type Exchange struct {
	Human string
	AI    string
}

// Build assembles the ordered prompt: the persona's system instruction, then
// the last windowSize exchanges as user/assistant pairs in chronological
// order, then the new human message. The provider reads the sequence as
// strict turn order, so this ordering must not change.
//
// windowSize <= 0 means no prior turns; a window larger than the history
// retains all of it.
func Build(persona Persona, history []Exchange, windowSize int, newHumanText string) []Turn {
	retained := window(history, windowSize)

	turns := make([]Turn, 0, 2+2*len(retained))
	turns = append(turns, Turn{Role: RoleSystem, Content: persona.Instruction()})
	for _, ex := range retained {
		turns = append(turns, Turn{Role: RoleUser, Content: ex.Human})
		turns = append(turns, Turn{Role: RoleAssistant, Content: ex.AI})
	}
	turns = append(turns, Turn{Role: RoleUser, Content: newHumanText})
	return turns
}

// window keeps the most recent size exchanges. Truncation is a suffix take,
// never an error.
func window(history []Exchange, size int) []Exchange {
	if size <= 0 {
		return nil
	}
	if len(history) <= size {
		return history
	}
	return history[len(history)-size:]
}
