package scim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"
)

var directoryUsers = map[string]map[string]any{
	"alice@x.com": {
		"id":            "1",
		"primaryEmail":  "alice@x.com",
		"name":          map[string]any{"givenName": "Alice", "familyName": "Smith", "fullName": "Alice Smith"},
		"orgUnitPath":   "/Org/Eng",
		"creationTime":  "2023-05-01T10:00:00.000Z",
		"lastLoginTime": "not a time",
	},
	"bob@x.com": {
		"id":           "2",
		"primaryEmail": "bob@x.com",
		"name":         map[string]any{"givenName": "Bob", "familyName": "Jones"},
		"suspended":    true,
	},
}

var directoryGroups = map[string]map[string]any{
	"eng@x.com":     {"id": "g1", "name": "Engineering", "email": "eng@x.com", "description": "All engineers"},
	"backend@x.com": {"id": "g2", "name": "Backend", "email": "backend@x.com"},
}

var directoryMembers = map[string][]map[string]any{
	"eng@x.com": {
		{"email": "alice@x.com", "type": "USER"},
		{"email": "backend@x.com", "type": "GROUP"},
		{"email": "ghost@x.com", "type": "USER"},
	},
	"backend@x.com": {
		{"email": "bob@x.com", "type": "USER"},
		{"email": "eng@x.com", "type": "GROUP"},
	},
}

func directoryHandler(w http.ResponseWriter, r *http.Request) {
	var reply = func(status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	var notFound = func() {
		reply(http.StatusNotFound, map[string]any{"error": map[string]any{"code": 404, "message": "Resource Not Found"}})
	}

	var path = strings.TrimPrefix(r.URL.Path, "/admin/directory/v1/")
	switch {
	case path == "users":
		var users []map[string]any
		if r.URL.Query().Get("query") == "orgUnitPath='/Org/Eng'" {
			users = append(users, directoryUsers["alice@x.com"])
		}
		reply(http.StatusOK, map[string]any{"users": users})
	case strings.HasPrefix(path, "users/"):
		if u, ok := directoryUsers[strings.TrimPrefix(path, "users/")]; ok {
			reply(http.StatusOK, u)
		} else {
			notFound()
		}
	case strings.HasPrefix(path, "groups/") && strings.HasSuffix(path, "/members"):
		var key = strings.TrimSuffix(strings.TrimPrefix(path, "groups/"), "/members")
		if m, ok := directoryMembers[key]; ok {
			reply(http.StatusOK, map[string]any{"members": m})
		} else {
			notFound()
		}
	case strings.HasPrefix(path, "groups/"):
		if g, ok := directoryGroups[strings.TrimPrefix(path, "groups/")]; ok {
			reply(http.StatusOK, g)
		} else {
			notFound()
		}
	case path == "customer/my_customer/orgunits/Org/Eng":
		reply(http.StatusOK, map[string]any{"name": "Eng", "orgUnitPath": "/Org/Eng", "description": "Engineering OU"})
	default:
		notFound()
	}
}

func newDirectoryTestEndpoint(t *testing.T) *GoogleEndpoint {
	var ts = httptest.NewServer(http.HandlerFunc(directoryHandler))
	t.Cleanup(ts.Close)
	directory, err := admin.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"), option.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return newGoogleEndpoint(directory, "", nopLogger)
}

func TestGoogleGetUser(t *testing.T) {
	endpoint := newDirectoryTestEndpoint(t)
	ctx := context.Background()

	alice, err := endpoint.GetUser(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "1", alice.Id)
	assert.Equal(t, "Alice Smith", alice.FullName)
	assert.Equal(t, "/Org/Eng", alice.OrgUnitPath)
	require.NotNil(t, alice.CreationTime)
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), alice.CreationTime.UTC())
	assert.Nil(t, alice.LastLoginTime)

	bob, err := endpoint.GetUser(ctx, "bob@x.com")
	require.NoError(t, err)
	assert.True(t, bob.Suspended)
	assert.Equal(t, "Bob Jones", bob.FullName)
	assert.Equal(t, "/", bob.OrgUnitPath)

	_, err = endpoint.GetUser(ctx, "ghost@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGoogleGetAllUsers(t *testing.T) {
	endpoint := newDirectoryTestEndpoint(t)

	users, err := endpoint.GetAllUsers(context.Background(), []string{"/Org/Eng"},
		[]string{"bob@x.com", "ghost@x.com", "ALICE@x.com"})
	require.NoError(t, err)

	var emails []string
	for _, u := range users {
		emails = append(emails, u.PrimaryEmail)
	}
	assert.Equal(t, []string{"alice@x.com", "bob@x.com"}, emails)
}

func TestGoogleGroups(t *testing.T) {
	endpoint := newDirectoryTestEndpoint(t)
	ctx := context.Background()

	group, err := endpoint.GetGroup(ctx, "eng@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Engineering", group.Name)
	assert.Equal(t, "All engineers", group.Description)
	assert.Equal(t, []string{"alice@x.com", "backend@x.com", "ghost@x.com"}, group.MemberEmails)

	nested, err := endpoint.GetNestedGroups(ctx, "eng@x.com")
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, "backend@x.com", nested[0].Email)
	assert.Equal(t, "eng@x.com", nested[0].ParentKey)

	users, err := endpoint.GetAllUsersInGroups(ctx, []string{"eng@x.com", "missing@x.com"})
	require.NoError(t, err)
	var emails []string
	for _, u := range users {
		emails = append(emails, u.PrimaryEmail)
	}
	assert.Equal(t, []string{"alice@x.com", "bob@x.com"}, emails)

	_, err = endpoint.GetGroup(ctx, "missing@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGoogleGetOrgUnit(t *testing.T) {
	endpoint := newDirectoryTestEndpoint(t)
	ctx := context.Background()

	ou, err := endpoint.GetOrgUnit(ctx, "/Org/Eng")
	require.NoError(t, err)
	assert.Equal(t, &OrgUnit{
		Path:        "/Org/Eng",
		Name:        "Eng",
		Description: "Engineering OU",
		UserEmails:  []string{"alice@x.com"},
	}, ou)

	_, err = endpoint.GetOrgUnit(ctx, "/Org/Missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrgUnitQuery(t *testing.T) {
	assert.Equal(t, "orgUnitPath='/Org/Eng'", orgUnitQuery("/Org/Eng"))
	assert.Equal(t, `orgUnitPath='/Org/O\'Brien'`, orgUnitQuery("/Org/O'Brien"))
}
