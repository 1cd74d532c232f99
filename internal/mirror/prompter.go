package mirror

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/temirov/reposync/internal/bitbucket"
)

const (
	destinationTitleConstant         = "Push destination"
	destinationOrganizationConstant  = "Target organization"
	destinationPersonalConstant      = "Personal account"
	destinationOrganizationValue     = "organization"
	destinationPersonalValue         = "personal"
	projectTitleConstant             = "Source project"
	projectOptionTemplateConstant    = "%s (%s)"
	repositoriesTitleConstant        = "Repositories to synchronize"
	confirmTitleTemplateConstant     = "Sync %d repositories and migrate %d new ones?"
	confirmAffirmativeConstant       = "Sync"
	confirmNegativeConstant          = "Cancel"
	teamsTitleConstant               = "Teams to grant admin access"
	teamRepositoriesTitleTemplate    = "Repositories for team %s"
	teamRepositoriesDescriptionConst = "Newly migrated repositories"
	repositoriesDescriptionConstant  = "Space toggles a repository, enter confirms"
)

// Prompter collects operator choices for an interactive session.
type Prompter interface {
	SelectDestination(executionContext context.Context) (bool, error)
	SelectProject(executionContext context.Context, projects []bitbucket.Project) (string, error)
	SelectRepositories(executionContext context.Context, repositoryNames []string) ([]string, error)
	ConfirmSync(executionContext context.Context, syncCount int, migrateCount int) (bool, error)
	SelectTeams(executionContext context.Context, teamSlugs []string) ([]string, error)
	SelectTeamRepositories(executionContext context.Context, teamSlug string, repositoryNames []string) ([]string, error)
}

// FormPrompter renders prompts as terminal forms.
type FormPrompter struct {
	input  io.Reader
	output io.Writer
}

// NewFormPrompter constructs a prompter bound to the provided streams.
func NewFormPrompter(input io.Reader, output io.Writer) *FormPrompter {
	return &FormPrompter{input: input, output: output}
}

// SelectDestination reports whether the operator chose the target organization.
func (prompter *FormPrompter) SelectDestination(executionContext context.Context) (bool, error) {
	selected := destinationOrganizationValue
	field := huh.NewSelect[string]().
		Title(destinationTitleConstant).
		Options(
			huh.NewOption(destinationOrganizationConstant, destinationOrganizationValue),
			huh.NewOption(destinationPersonalConstant, destinationPersonalValue),
		).
		Value(&selected)
	if runError := prompter.run(executionContext, field); runError != nil {
		return false, runError
	}
	return selected == destinationOrganizationValue, nil
}

// SelectProject returns the key of the chosen project.
func (prompter *FormPrompter) SelectProject(executionContext context.Context, projects []bitbucket.Project) (string, error) {
	options := make([]huh.Option[string], 0, len(projects))
	for _, project := range projects {
		options = append(options, huh.NewOption(fmt.Sprintf(projectOptionTemplateConstant, project.Name, project.Key), project.Key))
	}
	var selected string
	field := huh.NewSelect[string]().
		Title(projectTitleConstant).
		Options(options...).
		Value(&selected)
	if runError := prompter.run(executionContext, field); runError != nil {
		return "", runError
	}
	return selected, nil
}

// SelectRepositories returns the chosen repository names.
func (prompter *FormPrompter) SelectRepositories(executionContext context.Context, repositoryNames []string) ([]string, error) {
	return prompter.multiSelect(executionContext, repositoriesTitleConstant, repositoriesDescriptionConstant, repositoryNames)
}

// ConfirmSync asks the operator to approve the sync.
func (prompter *FormPrompter) ConfirmSync(executionContext context.Context, syncCount int, migrateCount int) (bool, error) {
	confirmed := false
	field := huh.NewConfirm().
		Title(fmt.Sprintf(confirmTitleTemplateConstant, syncCount, migrateCount)).
		Affirmative(confirmAffirmativeConstant).
		Negative(confirmNegativeConstant).
		Value(&confirmed)
	if runError := prompter.run(executionContext, field); runError != nil {
		return false, runError
	}
	return confirmed, nil
}

// SelectTeams returns the chosen team slugs.
func (prompter *FormPrompter) SelectTeams(executionContext context.Context, teamSlugs []string) ([]string, error) {
	return prompter.multiSelect(executionContext, teamsTitleConstant, "", teamSlugs)
}

// SelectTeamRepositories returns the repositories chosen for one team.
func (prompter *FormPrompter) SelectTeamRepositories(executionContext context.Context, teamSlug string, repositoryNames []string) ([]string, error) {
	return prompter.multiSelect(executionContext, fmt.Sprintf(teamRepositoriesTitleTemplate, teamSlug), teamRepositoriesDescriptionConst, repositoryNames)
}

func (prompter *FormPrompter) multiSelect(executionContext context.Context, title string, description string, values []string) ([]string, error) {
	options := make([]huh.Option[string], 0, len(values))
	for _, value := range values {
		options = append(options, huh.NewOption(value, value))
	}
	selected := make([]string, 0)
	field := huh.NewMultiSelect[string]().
		Title(title).
		Description(description).
		Options(options...).
		Value(&selected)
	if runError := prompter.run(executionContext, field); runError != nil {
		return nil, runError
	}
	return selected, nil
}

func (prompter *FormPrompter) run(executionContext context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field))
	if prompter.input != nil {
		form = form.WithInput(prompter.input)
	}
	if prompter.output != nil {
		form = form.WithOutput(prompter.output)
	}
	return form.RunWithContext(executionContext)
}
