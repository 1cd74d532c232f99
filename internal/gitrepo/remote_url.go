package gitrepo

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	httpSchemeConstant                  = "http"
	httpsSchemeConstant                 = "https"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	requiredValueMessageConstant        = "value required"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	unsupportedProtocolMessageConstant  = "unsupported remote protocol"
	missingHTTPCloneLinkMessageConstant = "no http(s) clone link available"
	cloneLinksInputLabelConstant        = "clone links"
)

// RemoteProtocol enumerates git remote protocols that accept token authentication.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolHTTP  RemoteProtocol = RemoteProtocol(httpSchemeConstant)
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol(httpsSchemeConstant)
)

// CloneLink is a named clone URL advertised by a forge, such as {"name": "http", "href": "..."}.
type CloneLink struct {
	Name string
	Href string
}

// RemoteURLParseError indicates a remote string could not be used.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// UnsupportedProtocolError indicates the remote uses a protocol that cannot carry a token.
type UnsupportedProtocolError struct {
	Protocol string
}

// Error describes the unsupported protocol.
func (protocolError UnsupportedProtocolError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, protocolError.Protocol, unsupportedProtocolMessageConstant)
}

// SelectHTTPCloneLink returns the first clone link whose name or scheme is http or https.
func SelectHTTPCloneLink(links []CloneLink) (string, error) {
	for _, link := range links {
		linkName := RemoteProtocol(strings.ToLower(strings.TrimSpace(link.Name)))
		if linkName == RemoteProtocolHTTP || linkName == RemoteProtocolHTTPS {
			return strings.TrimSpace(link.Href), nil
		}
	}
	for _, link := range links {
		if _, protocolError := parseHTTPRemote(link.Href); protocolError == nil {
			return strings.TrimSpace(link.Href), nil
		}
	}
	return "", RemoteURLParseError{Input: cloneLinksInputLabelConstant, Message: missingHTTPCloneLinkMessageConstant}
}

// AuthenticatedURL embeds username and token as userinfo of an http(s) remote.
// Any userinfo already present in the remote is replaced.
func AuthenticatedURL(remote string, username string, token string) (string, error) {
	parsedRemote, parseError := parseHTTPRemote(remote)
	if parseError != nil {
		return "", parseError
	}
	if len(strings.TrimSpace(token)) == 0 {
		return "", RemoteURLParseError{Input: "token", Message: requiredValueMessageConstant}
	}

	trimmedUsername := strings.TrimSpace(username)
	if len(trimmedUsername) == 0 {
		return "", RemoteURLParseError{Input: "username", Message: requiredValueMessageConstant}
	}

	parsedRemote.User = url.UserPassword(trimmedUsername, token)
	return parsedRemote.String(), nil
}

// StripCredentials removes userinfo from an http(s) remote. Inputs that cannot be parsed are returned unchanged.
func StripCredentials(remote string) string {
	parsedRemote, parseError := url.Parse(strings.TrimSpace(remote))
	if parseError != nil || parsedRemote.User == nil {
		return remote
	}
	parsedRemote.User = nil
	return parsedRemote.String()
}

func parseHTTPRemote(remote string) (*url.URL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return nil, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	parsedRemote, parseError := url.Parse(trimmedRemote)
	if parseError != nil || len(parsedRemote.Host) == 0 {
		return nil, RemoteURLParseError{Input: StripCredentials(trimmedRemote), Message: invalidRemoteURLMessageConstant}
	}

	switch RemoteProtocol(strings.ToLower(parsedRemote.Scheme)) {
	case RemoteProtocolHTTP, RemoteProtocolHTTPS:
		return parsedRemote, nil
	default:
		return nil, UnsupportedProtocolError{Protocol: parsedRemote.Scheme}
	}
}
