package mml

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Placeholders that may be referenced by scripted commands.
const (
	NetworkElementPlaceholder    = "{network_element}"
	SubNetworkElementPlaceholder = "{sub_network_element}"
	UserPlaceholder              = "{user}"
	PasswordPlaceholder          = "{password}"
)

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z_]+\}`)

// Command is an entry of a pre-login or post-login script.
// A command is either literal text, or a template referencing the placeholders above.
type Command struct {
	text      string
	templated bool
}

// Bindings holds the values substituted into templated commands.
// NetworkElement and SubNetworkElement are supplied at login; User and Password are the credentials the session
// was constructed with.
type Bindings struct {
	NetworkElement    string
	SubNetworkElement string
	User              string
	Password          string
}

// ParseCommand classifies text as a literal or templated command.
// ErrUnknownPlaceholder is returned if the text references anything other than the supported placeholders.
func ParseCommand(text string) (Command, error) {
	refs := placeholderPattern.FindAllString(text, -1)
	for _, ref := range refs {
		switch ref {
		case NetworkElementPlaceholder, SubNetworkElementPlaceholder, UserPlaceholder, PasswordPlaceholder:
		default:
			return Command{}, errors.Wrapf(ErrUnknownPlaceholder, "%s in %q", ref, text)
		}
	}
	return Command{text: text, templated: len(refs) > 0}, nil
}

// MustParseCommands is like ParseCommand, for a list of command texts, but panics if any text is invalid.
func MustParseCommands(texts ...string) []Command {
	cmds, err := ParseCommands(texts...)
	if err != nil {
		panic(err)
	}
	return cmds
}

// ParseCommands parses each of the texts, preserving order.
func ParseCommands(texts ...string) ([]Command, error) {
	cmds := make([]Command, 0, len(texts))
	for _, text := range texts {
		c, err := ParseCommand(text)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// Templated reports whether the command has placeholders to be resolved before sending.
func (c Command) Templated() bool {
	return c.templated
}

func (c Command) String() string {
	return c.text
}

// Resolve returns the command text with any placeholders replaced by the bound values.
func (c Command) Resolve(b Bindings) string {
	if !c.templated {
		return c.text
	}
	return strings.NewReplacer(
		NetworkElementPlaceholder, b.NetworkElement,
		SubNetworkElementPlaceholder, b.SubNetworkElement,
		UserPlaceholder, b.User,
		PasswordPlaceholder, b.Password,
	).Replace(c.text)
}
