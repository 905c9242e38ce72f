package publish

import (
	"bytes"
	"fmt"
	"os"

	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// LoadDraft reads a release draft from a YAML file. Unknown keys are
// rejected so a misspelled field does not silently publish without it.
func LoadDraft(path string) (models.ReleaseDraft, error) {
	var draft models.ReleaseDraft
	data, err := os.ReadFile(path)
	if err != nil {
		return draft, errors.ErrInvalidDraft.WithError(err).WithContext("file", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&draft); err != nil {
		return draft, errors.ErrInvalidDraft.WithError(fmt.Errorf("decode %s: %w", path, err)).WithContext("file", path)
	}
	return draft, nil
}

// draftFromCommand starts from --from, if given, and applies every flag the
// user set on top of it.
func draftFromCommand(cmd *cli.Command) (models.ReleaseDraft, error) {
	var draft models.ReleaseDraft
	if path := cmd.String("from"); path != "" {
		var err error
		if draft, err = LoadDraft(path); err != nil {
			return draft, err
		}
	}

	if cmd.IsSet("tag") {
		draft.TagName = cmd.String("tag")
	}
	if cmd.IsSet("title") {
		draft.Title = cmd.String("title")
	}
	if cmd.IsSet("notes") {
		draft.Notes = cmd.String("notes")
	}
	if cmd.IsSet("target") {
		draft.TargetBranch = cmd.String("target")
	}
	if cmd.IsSet("prerelease") {
		draft.Prerelease = cmd.Bool("prerelease")
	}
	if cmd.IsSet("installer") {
		draft.BuildInstaller = cmd.Bool("installer")
	}

	if draft.TagName == "" {
		return draft, errors.ErrInvalidDraft.WithContext("field", "tag").
			WithSuggestion("Pass --tag or set tag in the draft file")
	}
	return draft, nil
}
