// Package completion prints shell completion scripts.
package completion

import (
	"context"
	"fmt"

	"github.com/thomas-vilte/materelease/internal/commands/cmdutil"
	"github.com/thomas-vilte/materelease/internal/config"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/urfave/cli/v3"
)

const bashCompletionScript = `#! /bin/bash

_materelease_bash_autocomplete() {
  if [[ "${COMP_WORDS[0]}" != "source" ]]; then
    local cur opts
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    local cmd_context=("${COMP_WORDS[@]:0:$COMP_CWORD}")
    opts=$( "${cmd_context[@]}" --generate-shell-completion )
    COMPREPLY=( $(compgen -W "${opts}" -- ${cur}) )
    return 0
  fi
}

complete -o bashdefault -o default -o nospace -F _materelease_bash_autocomplete materelease
`

const zshCompletionScript = `#compdef materelease

_materelease() {
  local -a opts
  local cmd_context=("${(@)words[1,$CURRENT-1]}")
  opts=("${(@f)$("${cmd_context[@]}" --generate-shell-completion)}")
  _describe 'values' opts
}

compdef _materelease materelease
`

type CompletionCommandFactory struct{}

func NewCompletionCommandFactory() *CompletionCommandFactory {
	return &CompletionCommandFactory{}
}

func (f *CompletionCommandFactory) CreateCommand(t *i18n.Translations, _ *config.Config) *cli.Command {
	script := func(body string) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprint(cmdutil.Output(cmd), body)
			return err
		}
	}
	return &cli.Command{
		Name:  "completion",
		Usage: t.GetMessage("completion_usage", 0, nil),
		Commands: []*cli.Command{
			{Name: "bash", Usage: t.GetMessage("completion_bash_usage", 0, nil), Action: script(bashCompletionScript)},
			{Name: "zsh", Usage: t.GetMessage("completion_zsh_usage", 0, nil), Action: script(zshCompletionScript)},
		},
	}
}

// FlagComplete lists every flag of cmd. Commands whose arguments are free
// text use it so completion still offers their flags.
func FlagComplete(_ context.Context, cmd *cli.Command) {
	out := cmdutil.Output(cmd)
	for _, f := range cmd.Flags {
		for _, name := range f.Names() {
			if len(name) == 1 {
				_, _ = fmt.Fprintln(out, "-"+name)
			} else {
				_, _ = fmt.Fprintln(out, "--"+name)
			}
		}
	}
}
