package scim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	schemaUser    = "urn:ietf:params:scim:schemas:core:2.0:User"
	schemaGroup   = "urn:ietf:params:scim:schemas:core:2.0:Group"
	schemaPatchOp = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	pageSize      = 100
	maxPages      = 1000
)

type ScimEndpointParameters struct {
	Url     string
	Token   string
	Verbose bool
}

// ScimEndpoint is an ITargetDirectory speaking SCIM 2.0 over HTTP. Teams are
// SCIM Groups; group members are translated between user ids and usernames.
type ScimEndpoint struct {
	baseUrl   string
	token     string
	verbose   bool
	client    *http.Client
	logger    *zap.SugaredLogger
	userIds   map[string]string
	userNames map[string]string
}

func NewScimEndpoint(params *ScimEndpointParameters, client *http.Client, logger *zap.SugaredLogger) *ScimEndpoint {
	if client == nil {
		client = http.DefaultClient
	}
	return &ScimEndpoint{
		baseUrl:   strings.TrimRight(params.Url, "/"),
		token:     params.Token,
		verbose:   params.Verbose,
		client:    client,
		logger:    logger,
		userIds:   make(map[string]string),
		userNames: make(map[string]string),
	}
}

// scimError is a non-2xx SCIM response.
type scimError struct {
	Method   string
	Resource string
	Status   int
	Body     string
}

func (e *scimError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("%s SCIM \"%s\" error: %s", e.Method, e.Resource, e.Body)
	}
	return fmt.Sprintf("%s SCIM \"%s\" error: Status code %d", e.Method, e.Resource, e.Status)
}

func (e *scimError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusNotImplemented:
		return ErrNotSupported
	}
	return nil
}

// teamsError reports a missing Groups resource as ErrNotSupported.
func teamsError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("SCIM groups: %w: %s", ErrNotSupported, err.Error())
	}
	return err
}

type scimName struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Formatted  string `json:"formatted,omitempty"`
}

type scimEmail struct {
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary"`
}

type scimRole struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

type scimUserPayload struct {
	Schemas     []string    `json:"schemas"`
	UserName    string      `json:"userName"`
	ExternalId  string      `json:"externalId,omitempty"`
	Name        scimName    `json:"name"`
	DisplayName string      `json:"displayName,omitempty"`
	Emails      []scimEmail `json:"emails"`
	Roles       []scimRole  `json:"roles,omitempty"`
	Active      bool        `json:"active"`
}

type scimMember struct {
	Value string `json:"value"`
}

type scimGroupPayload struct {
	Schemas     []string     `json:"schemas"`
	DisplayName string       `json:"displayName"`
	ExternalId  string       `json:"externalId,omitempty"`
	Description string       `json:"description,omitempty"`
	Members     []scimMember `json:"members"`
}

type scimPatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`
}

type scimPatchPayload struct {
	Schemas    []string             `json:"schemas"`
	Operations []scimPatchOperation `json:"Operations"`
}

func userPayload(user *TargetUser) *scimUserPayload {
	var payload = &scimUserPayload{
		Schemas:    []string{schemaUser},
		UserName:   user.UserName,
		ExternalId: user.ExternalId,
		Name: scimName{
			GivenName:  user.Name.GivenName,
			FamilyName: user.Name.FamilyName,
			Formatted:  user.Name.Formatted,
		},
		DisplayName: user.Name.Formatted,
		Active:      user.Active,
	}
	for _, e := range user.Emails {
		payload.Emails = append(payload.Emails, scimEmail{Value: e.Value, Type: e.Type, Primary: e.Primary})
	}
	for _, r := range user.Roles {
		payload.Roles = append(payload.Roles, scimRole{Value: r.Value, Primary: r.Primary})
	}
	return payload
}

func (s *ScimEndpoint) groupPayload(team *TargetTeam) *scimGroupPayload {
	var payload = &scimGroupPayload{
		Schemas:     []string{schemaGroup},
		DisplayName: team.Name,
		ExternalId:  team.Slug,
		Description: team.Description,
		Members:     []scimMember{},
	}
	for _, username := range team.Members {
		if id, ok := s.userIds[username]; ok {
			payload.Members = append(payload.Members, scimMember{Value: id})
		} else {
			s.logger.Warnw("team member has no SCIM user", "team", team.Name, "username", username)
		}
	}
	return payload
}

func parseScimUser(userObject map[string]any) (result *TargetUser) {
	var ok bool
	var userId, userName string
	if userId, ok = toString(userObject["id"]); ok {
		userName, ok = toString(userObject["userName"])
	}
	if !ok {
		return
	}
	result = new(TargetUser)
	result.Id = userId
	result.UserName = userName
	result.Active, _ = toBoolean(userObject["active"])
	result.ExternalId, _ = toString(userObject["externalId"])
	var j any
	var jo map[string]any
	if j = userObject["name"]; j != nil {
		if jo, ok = j.(map[string]any); ok {
			result.Name.GivenName, _ = toString(jo["givenName"])
			result.Name.FamilyName, _ = toString(jo["familyName"])
			result.Name.Formatted, _ = toString(jo["formatted"])
		}
	}
	var ja []any
	if ja, ok = userObject["emails"].([]any); ok {
		for _, j = range ja {
			if jo, ok = j.(map[string]any); ok {
				var email Email
				email.Value, _ = toString(jo["value"])
				email.Type, _ = toString(jo["type"])
				email.Primary, _ = toBoolean(jo["primary"])
				result.Emails = append(result.Emails, email)
			}
		}
	}
	if ja, ok = userObject["roles"].([]any); ok {
		for _, j = range ja {
			if jo, ok = j.(map[string]any); ok {
				var role Role
				role.Value, _ = toString(jo["value"])
				role.Primary, _ = toBoolean(jo["primary"])
				result.Roles = append(result.Roles, role)
			}
		}
	}
	return
}

func (s *ScimEndpoint) parseScimGroup(groupObject map[string]any) (result *TargetTeam) {
	var ok bool
	var id, name string
	if id, ok = toString(groupObject["id"]); ok {
		name, ok = toString(groupObject["displayName"])
	}
	if !ok {
		return
	}
	result = &TargetTeam{
		Id:   id,
		Name: name,
		Slug: MapTeamSlug(name),
	}
	result.Description, _ = toString(groupObject["description"])
	if ja, ok := groupObject["members"].([]any); ok {
		for _, j := range ja {
			var jo map[string]any
			if jo, ok = j.(map[string]any); !ok {
				continue
			}
			var memberId, _ = toString(jo["value"])
			if username, found := s.userNames[memberId]; found {
				result.Members = append(result.Members, username)
			} else if display, found := toString(jo["display"]); found {
				result.Members = append(result.Members, display)
			}
		}
	}
	return
}

func (s *ScimEndpoint) rememberUser(user *TargetUser) {
	if user != nil && len(user.Id) > 0 {
		s.userIds[user.UserName] = user.Id
		s.userNames[user.Id] = user.UserName
	}
}

func (s *ScimEndpoint) composeUrl(paths ...string) (result *url.URL, err error) {
	var uri *url.URL
	if uri, err = url.Parse(s.baseUrl); err != nil {
		return
	}
	var ruri *url.URL
	for _, path := range paths {
		if ruri, err = url.Parse(url.PathEscape(path)); err != nil {
			return
		}
		if !strings.HasSuffix(uri.Path, "/") {
			uri.Path += "/"
		}
		uri = uri.ResolveReference(ruri)
	}

	result = uri
	return
}

func (s *ScimEndpoint) executeRequest(rq *http.Request) (response map[string]any, err error) {
	rq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.token))
	rq.Header.Set("Accept", "application/scim+json")
	if s.verbose {
		s.logger.Infow("SCIM request", "method", rq.Method, "url", rq.URL.String())
	}
	var rs *http.Response
	if rs, err = s.client.Do(rq); err != nil {
		return
	}
	defer func() { _ = rs.Body.Close() }()

	var body []byte
	var contentType = rs.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/") {
		if body, err = io.ReadAll(rs.Body); err != nil {
			return
		}
	}
	if rs.StatusCode >= 300 {
		var scimUrl = rq.URL.String()
		if strings.HasPrefix(scimUrl, s.baseUrl) {
			scimUrl = scimUrl[len(s.baseUrl):]
			scimUrl = strings.Trim(scimUrl, "/")
		}
		err = &scimError{Method: rq.Method, Resource: scimUrl, Status: rs.StatusCode, Body: string(body)}
		return
	}
	if (rs.StatusCode == http.StatusOK || rs.StatusCode == http.StatusCreated) && len(body) > 0 {
		err = json.Unmarshal(body, &response)
	}
	return
}

func (s *ScimEndpoint) sendResource(ctx context.Context, method string, payload any, paths ...string) (resource map[string]any, err error) {
	var uri *url.URL
	if uri, err = s.composeUrl(paths...); err != nil {
		return
	}

	var body io.Reader
	if payload != nil {
		var data []byte
		if data, err = json.Marshal(payload); err != nil {
			return
		}
		body = bytes.NewBuffer(data)
	}

	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, method, uri.String(), body); err != nil {
		return
	}
	if payload != nil {
		rq.Header.Set("Content-Type", "application/scim+json")
	}

	resource, err = s.executeRequest(rq)
	return
}

func (s *ScimEndpoint) getResources(ctx context.Context, resourceType string, cb func(map[string]any)) (err error) {
	var uri *url.URL
	if uri, err = s.composeUrl(resourceType); err != nil {
		return
	}

	var startIndex int64 = 1
	for page := 0; ; page++ {
		if page >= maxPages {
			err = fmt.Errorf("get SCIM resource \"%s\" canceled", resourceType)
			return
		}
		var ruri = *uri
		var query = ruri.Query()
		query.Set("startIndex", strconv.FormatInt(startIndex, 10))
		query.Set("count", strconv.Itoa(pageSize))
		ruri.RawQuery = query.Encode()

		var rq *http.Request
		if rq, err = http.NewRequestWithContext(ctx, http.MethodGet, ruri.String(), nil); err != nil {
			return
		}

		var jo map[string]any
		if jo, err = s.executeRequest(rq); err != nil {
			return
		}
		var ok bool
		if jr, ok := jo["Resources"].([]any); ok {
			for _, j := range jr {
				if jor, ok := j.(map[string]any); ok {
					cb(jor)
				}
			}
		}
		var itemsPerPage int64
		if itemsPerPage, ok = toInt64(jo["itemsPerPage"]); !ok {
			err = fmt.Errorf("response does not conform to SCIM specification: missing \"itemsPerPage\"")
			return
		}
		if startIndex, ok = toInt64(jo["startIndex"]); !ok {
			err = fmt.Errorf("response does not conform to SCIM specification: missing \"startIndex\"")
			return
		}
		var totalResults int64
		if totalResults, ok = toInt64(jo["totalResults"]); !ok {
			err = fmt.Errorf("response does not conform to SCIM specification: missing \"totalResults\"")
			return
		}
		if itemsPerPage <= 0 {
			return
		}
		startIndex += itemsPerPage
		if startIndex > totalResults {
			return
		}
	}
}

func (s *ScimEndpoint) GetUsers(ctx context.Context) (users []*TargetUser, err error) {
	err = s.getResources(ctx, "Users", func(ro map[string]any) {
		if user := parseScimUser(ro); user != nil {
			s.rememberUser(user)
			users = append(users, user)
		}
	})
	return
}

func (s *ScimEndpoint) GetTeams(ctx context.Context) (teams []*TargetTeam, err error) {
	err = s.getResources(ctx, "Groups", func(ro map[string]any) {
		if team := s.parseScimGroup(ro); team != nil {
			teams = append(teams, team)
		}
	})
	err = teamsError(err)
	return
}

func (s *ScimEndpoint) userResponse(resource map[string]any, fallback *TargetUser) (user *TargetUser) {
	if user = parseScimUser(resource); user == nil {
		user = fallback
	}
	s.rememberUser(user)
	return
}

func (s *ScimEndpoint) CreateUser(ctx context.Context, user *TargetUser) (created *TargetUser, err error) {
	var resource map[string]any
	if resource, err = s.sendResource(ctx, http.MethodPost, userPayload(user), "Users"); err != nil {
		return
	}
	created = s.userResponse(resource, user)
	return
}

// UpdateUser replaces the whole user resource.
func (s *ScimEndpoint) UpdateUser(ctx context.Context, id string, user *TargetUser) (updated *TargetUser, err error) {
	var resource map[string]any
	if resource, err = s.sendResource(ctx, http.MethodPut, userPayload(user), "Users", id); err != nil {
		return
	}
	var fallback = *user
	fallback.Id = id
	updated = s.userResponse(resource, &fallback)
	return
}

func (s *ScimEndpoint) SuspendUser(ctx context.Context, id string) (suspended *TargetUser, err error) {
	var payload = &scimPatchPayload{
		Schemas: []string{schemaPatchOp},
		Operations: []scimPatchOperation{
			{Op: "replace", Path: "active", Value: false},
		},
	}
	var resource map[string]any
	if resource, err = s.sendResource(ctx, http.MethodPatch, payload, "Users", id); err != nil {
		return
	}
	suspended = s.userResponse(resource, &TargetUser{Id: id, UserName: s.userNames[id]})
	suspended.Active = false
	return
}

func (s *ScimEndpoint) DeleteUser(ctx context.Context, id string) (err error) {
	_, err = s.sendResource(ctx, http.MethodDelete, nil, "Users", id)
	return
}

func (s *ScimEndpoint) teamResponse(resource map[string]any, fallback *TargetTeam) (team *TargetTeam) {
	if team = s.parseScimGroup(resource); team == nil {
		team = fallback
	}
	return
}

func (s *ScimEndpoint) CreateTeam(ctx context.Context, team *TargetTeam) (created *TargetTeam, err error) {
	var resource map[string]any
	if resource, err = s.sendResource(ctx, http.MethodPost, s.groupPayload(team), "Groups"); err != nil {
		err = teamsError(err)
		return
	}
	created = s.teamResponse(resource, team)
	return
}

func (s *ScimEndpoint) UpdateTeam(ctx context.Context, id string, team *TargetTeam) (updated *TargetTeam, err error) {
	var resource map[string]any
	if resource, err = s.sendResource(ctx, http.MethodPut, s.groupPayload(team), "Groups", id); err != nil {
		return
	}
	var fallback = *team
	fallback.Id = id
	updated = s.teamResponse(resource, &fallback)
	return
}
