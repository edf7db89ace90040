package dap

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/sbdap/pkg/config"
	"github.com/google/go-dap"
)

// metaCmd runs a debug console command implemented by the adapter. It
// returns errNoCmd when cmdstr names none, in which case the line goes to
// the engine.
func (s *Session) metaCmd(cmdstr string) (string, error) {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	if cmd := s.findCommand(cmdname); cmd != nil {
		return cmd.cmdFn(args)
	}
	return "", errNoCmd
}

type cmdfunc func(args string) (string, error)

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

const (
	msgHelp = `Prints the help message.

help [command]

Type "help" followed by the name of a command for more information about it.
Lines that are not adapter commands are passed to the debugger engine.
Prefix a line with '?' to evaluate it as an expression.`

	msgConfig = `Changes configuration parameters.

	config -list

	Show all configuration parameters.

	config -list <parameter>

	Show value of a configuration parameter.

	config <parameter> <value>

	Changes the value of a configuration parameter.

	config sourceMap <from> <to>
	config sourceMap <from>

	Adds or removes a source map rule.`

	msgLoadImage = `Loads a shared library into the debuggee.

	load-image <path>`
)

// debugCommands returns a list of commands with default commands defined.
func debugCommands(s *Session) []command {
	return []command{
		{aliases: []string{"help", "h"}, cmdFn: s.helpMessage, helpMsg: msgHelp},
		{aliases: []string{"config"}, cmdFn: s.evaluateConfig, helpMsg: msgConfig},
		{aliases: []string{"load-image"}, cmdFn: s.loadImage, helpMsg: msgLoadImage},
	}
}

var errNoCmd = errors.New("command not available")

// findCommand returns the command named name, looking through the aliases
// of the user configuration as well.
func (s *Session) findCommand(name string) *command {
	cmds := debugCommands(s)
	if uc := s.config.UserConfig; uc != nil {
		for target, aliases := range uc.Aliases {
			for i := range cmds {
				if cmds[i].aliases[0] != target {
					continue
				}
				cmds[i].aliases = append(cmds[i].aliases, aliases...)
			}
		}
	}
	for i := range cmds {
		for _, alias := range cmds[i].aliases {
			if alias == name {
				return &cmds[i]
			}
		}
	}
	return nil
}

// newCommandTrie indexes the names of the adapter commands for completion.
func newCommandTrie(s *Session) *trie.Trie {
	t := trie.New()
	for _, cmd := range debugCommands(s) {
		for _, alias := range cmd.aliases {
			t.Add(alias, nil)
		}
	}
	if uc := s.config.UserConfig; uc != nil {
		for _, aliases := range uc.Aliases {
			for _, alias := range aliases {
				t.Add(alias, nil)
			}
		}
	}
	return t
}

func (s *Session) helpMessage(args string) (string, error) {
	var buf bytes.Buffer
	if args != "" {
		if cmd := s.findCommand(args); cmd != nil {
			return cmd.helpMsg, nil
		}
		return "", errNoCmd
	}

	fmt.Fprintln(&buf, "The following commands are available:")

	for _, cmd := range debugCommands(s) {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(&buf, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(&buf, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}

	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "Type help followed by a command for full documentation.")
	return buf.String(), nil
}

func (s *Session) evaluateConfig(expr string) (string, error) {
	argv := config.Split2PartsBySpace(expr)
	name := argv[0]
	if name == "-list" {
		if len(argv) > 1 {
			return config.ConfigureListByName(&s.settings, argv[1], "cfgName"), nil
		}
		return listConfig(&s.settings), nil
	}
	updated, res, err := configureSet(&s.settings, expr)
	if err != nil {
		return "", err
	}

	if updated {
		switch name {
		case "sourceMap":
			s.sources.SetMap(s.settings.SourceMap)
			// Source locations have become invalidated.
			s.send(&dap.InvalidatedEvent{
				Event: *newEvent("invalidated"),
				Body: dap.InvalidatedEventBody{
					Areas: []dap.InvalidatedAreas{"stacks"},
				},
			})
		case "maxChildren":
			// Variable data has become invalidated.
			s.send(&dap.InvalidatedEvent{
				Event: *newEvent("invalidated"),
				Body: dap.InvalidatedEventBody{
					Areas: []dap.InvalidatedAreas{"variables"},
				},
			})
		}
		res += "\nUpdated"
	}
	return res, nil
}

func (s *Session) loadImage(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("usage: load-image <path>")
	}
	if s.process == nil || s.process.State().IsGone() {
		return "", errNoProcess
	}
	token, err := s.process.LoadImage(s.sources.ToEngine(path))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Loaded %s as image %d", path, token), nil
}

// completeCommand returns the adapter commands starting with prefix.
func (s *Session) completeCommand(prefix string) []string {
	r := s.commands.PrefixSearch(prefix)
	sort.Strings(r)
	return r
}
