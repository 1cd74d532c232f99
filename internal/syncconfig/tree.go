package syncconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

const (
	regexOptionKeyConstant             = "regex"
	repoConfigOptionKeyConstant        = "repo_config"
	treeFormatErrorTemplateConstant    = "invalid %s: %s"
	readTreeErrorTemplateConstant      = "unable to read repository trees from %s: %w"
	parseTreeErrorTemplateConstant     = "unable to parse repository trees from %s: %w"
	optionsDecodeErrorTemplateConstant = "unable to decode options at %s: %w"
	pathSeparatorConstant              = "."
	emptyNameMessageConstant           = "empty repository name"
	emptyTeamMessageConstant           = "empty team name"
	unsupportedNodeTemplateConstant    = "unsupported node of type %T"
	unsupportedValueTemplateConstant   = "expected a list or an options mapping, got %T"
	unknownOptionTemplateConstant      = "unknown option %q"
)

// NodeKind distinguishes repository-name nodes from team nodes.
type NodeKind int

// Node kinds.
const (
	NameEntry NodeKind = iota
	TeamEntry
)

// RepoConfigNode is one element of a repo_config list. Name holds the repository
// name or pattern for a NameEntry and the team name for a TeamEntry. Regex is nil
// when the node inherits the flag of its nearest ancestor.
type RepoConfigNode struct {
	Kind     NodeKind
	Name     string
	Regex    *bool
	Children []RepoConfigNode
}

// ProjectConfig is the root of the tree for one project.
type ProjectConfig struct {
	Regex    *bool
	Children []RepoConfigNode
}

// Tree maps project keys to their configuration.
type Tree map[string]ProjectConfig

// ProjectKeys returns the configured project keys in sorted order.
func (tree Tree) ProjectKeys() []string {
	projectKeys := make([]string, 0, len(tree))
	for projectKey := range tree {
		projectKeys = append(projectKeys, projectKey)
	}
	sort.Strings(projectKeys)
	return projectKeys
}

// Trees bundles the include and exclude trees.
type Trees struct {
	Include Tree
	Exclude Tree
}

// TreeFormatError reports a malformed node.
type TreeFormatError struct {
	Path    string
	Message string
}

// Error describes the malformed node.
func (formatError TreeFormatError) Error() string {
	return fmt.Sprintf(treeFormatErrorTemplateConstant, formatError.Path, formatError.Message)
}

type nodeOptions struct {
	Regex      *bool `mapstructure:"regex"`
	RepoConfig []any `mapstructure:"repo_config"`
}

type treeDocument struct {
	Sync struct {
		Include map[string]any `yaml:"include"`
		Exclude map[string]any `yaml:"exclude"`
	} `yaml:"sync"`
}

// LoadTrees reads sync.include and sync.exclude from a YAML or JSON configuration file.
// An empty path yields empty trees.
func LoadTrees(configurationFilePath string) (Trees, error) {
	if len(strings.TrimSpace(configurationFilePath)) == 0 {
		return Trees{Include: Tree{}, Exclude: Tree{}}, nil
	}

	contents, readError := os.ReadFile(configurationFilePath)
	if readError != nil {
		return Trees{}, fmt.Errorf(readTreeErrorTemplateConstant, configurationFilePath, readError)
	}

	var document treeDocument
	if unmarshalError := yaml.Unmarshal(contents, &document); unmarshalError != nil {
		return Trees{}, fmt.Errorf(parseTreeErrorTemplateConstant, configurationFilePath, unmarshalError)
	}

	includeTree, includeError := ParseTree("sync.include", document.Sync.Include)
	if includeError != nil {
		return Trees{}, fmt.Errorf(parseTreeErrorTemplateConstant, configurationFilePath, includeError)
	}
	excludeTree, excludeError := ParseTree("sync.exclude", document.Sync.Exclude)
	if excludeError != nil {
		return Trees{}, fmt.Errorf(parseTreeErrorTemplateConstant, configurationFilePath, excludeError)
	}

	return Trees{Include: includeTree, Exclude: excludeTree}, nil
}

// ParseTree converts generic decoded values into a Tree. root names the tree in error messages.
func ParseTree(root string, rawTree map[string]any) (Tree, error) {
	tree := make(Tree, len(rawTree))
	for projectKey, rawProject := range rawTree {
		projectPath := root + pathSeparatorConstant + projectKey
		regexFlag, children, parseError := parseContainer(projectPath, rawProject)
		if parseError != nil {
			return nil, parseError
		}
		tree[projectKey] = ProjectConfig{Regex: regexFlag, Children: children}
	}
	return tree, nil
}

func parseContainer(path string, rawValue any) (*bool, []RepoConfigNode, error) {
	switch typedValue := rawValue.(type) {
	case nil:
		return nil, nil, nil
	case []any:
		children, childrenError := parseNodes(path, typedValue)
		return nil, children, childrenError
	case map[string]any:
		for optionKey := range typedValue {
			if optionKey != regexOptionKeyConstant && optionKey != repoConfigOptionKeyConstant {
				return nil, nil, TreeFormatError{Path: path, Message: fmt.Sprintf(unknownOptionTemplateConstant, optionKey)}
			}
		}
		var options nodeOptions
		if decodeError := mapstructure.Decode(typedValue, &options); decodeError != nil {
			return nil, nil, fmt.Errorf(optionsDecodeErrorTemplateConstant, path, decodeError)
		}
		children, childrenError := parseNodes(path+pathSeparatorConstant+repoConfigOptionKeyConstant, options.RepoConfig)
		return options.Regex, children, childrenError
	default:
		return nil, nil, TreeFormatError{Path: path, Message: fmt.Sprintf(unsupportedValueTemplateConstant, rawValue)}
	}
}

func parseNodes(path string, rawNodes []any) ([]RepoConfigNode, error) {
	nodes := make([]RepoConfigNode, 0, len(rawNodes))
	for nodeIndex, rawNode := range rawNodes {
		nodePath := fmt.Sprintf("%s[%d]", path, nodeIndex)
		switch typedNode := rawNode.(type) {
		case map[string]any:
			teamNodes, teamError := parseTeamNodes(nodePath, typedNode)
			if teamError != nil {
				return nil, teamError
			}
			nodes = append(nodes, teamNodes...)
		case []any:
			return nil, TreeFormatError{Path: nodePath, Message: fmt.Sprintf(unsupportedNodeTemplateConstant, rawNode)}
		case nil:
			return nil, TreeFormatError{Path: nodePath, Message: emptyNameMessageConstant}
		default:
			repositoryName := strings.TrimSpace(fmt.Sprint(typedNode))
			if len(repositoryName) == 0 {
				return nil, TreeFormatError{Path: nodePath, Message: emptyNameMessageConstant}
			}
			nodes = append(nodes, RepoConfigNode{Kind: NameEntry, Name: repositoryName})
		}
	}
	return nodes, nil
}

func parseTeamNodes(path string, rawMapping map[string]any) ([]RepoConfigNode, error) {
	teamNames := make([]string, 0, len(rawMapping))
	for teamName := range rawMapping {
		teamNames = append(teamNames, teamName)
	}
	sort.Strings(teamNames)

	teamNodes := make([]RepoConfigNode, 0, len(teamNames))
	for _, teamName := range teamNames {
		trimmedTeamName := strings.TrimSpace(teamName)
		if len(trimmedTeamName) == 0 {
			return nil, TreeFormatError{Path: path, Message: emptyTeamMessageConstant}
		}
		regexFlag, children, parseError := parseContainer(path+pathSeparatorConstant+trimmedTeamName, rawMapping[teamName])
		if parseError != nil {
			return nil, parseError
		}
		teamNodes = append(teamNodes, RepoConfigNode{Kind: TeamEntry, Name: trimmedTeamName, Regex: regexFlag, Children: children})
	}
	return teamNodes, nil
}

// IsFormatError reports whether err describes a malformed tree.
func IsFormatError(err error) bool {
	var formatError TreeFormatError
	return errors.As(err, &formatError)
}
