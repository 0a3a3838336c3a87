package scim

import (
	"errors"
	"strconv"

	ksm "github.com/keeper-security/secrets-manager-go/core"
)

// RecordSettings holds the sync behaviour stored in custom fields of a Keeper SCIM record.
type RecordSettings struct {
	Scope   Scope
	Options SyncOptions
	Mapper  IdentityMapper
}

func customList(scimRecord *ksm.Record, labels ...string) (result []string) {
	for _, label := range labels {
		var fields = scimRecord.GetCustomFieldsByLabel(label)
		if len(fields) != 0 {
			result = append(result, ParseListField(fields)...)
		}
	}
	return
}

func customBool(scimRecord *ksm.Record, label string, defaultValue bool) bool {
	var fields = scimRecord.GetCustomFieldsByLabel(label)
	if len(fields) > 0 {
		if bv, ok := toBoolean(fields[0]["value"]); ok {
			return bv
		}
	}
	return defaultValue
}

// LoadScimParametersFromRecord reads SCIM and Google Workspace connection
// parameters and sync settings from a Keeper login record. The record carries
// the SCIM URL, the SCIM token as password, the Google admin as login and the
// service account key as the "credentials.json" attachment.
func LoadScimParametersFromRecord(scimRecord *ksm.Record) (ka *ScimEndpointParameters, gcp *GoogleEndpointParameters, settings *RecordSettings, err error) {
	var files = scimRecord.FindFiles("credentials.json")
	if len(files) == 0 {
		err = errors.New("\"credentials.json\" attachment is missing")
		return
	}
	var credentials = files[0].GetFileData()
	var subject = scimRecord.GetFieldValueByType("login")

	settings = &RecordSettings{
		Scope: Scope{
			Groups:          customList(scimRecord, "SCIM Group", "SCIM Groups"),
			OrgUnits:        customList(scimRecord, "Org Units"),
			IndividualUsers: customList(scimRecord, "Individual Users"),
		},
		Options: SyncOptions{
			Mode:             ModeGroup,
			CreateTeams:      customBool(scimRecord, "Create Teams", true),
			FlattenHierarchy: customBool(scimRecord, "Flatten Hierarchy", true),
			IncludeSuspended: customBool(scimRecord, "Include Suspended", true),
			OrgUnitFilter:    customList(scimRecord, "Org Unit Filter"),
		},
		Mapper: IdentityMapper{
			EnterpriseOwners:   customList(scimRecord, "Enterprise Owners"),
			BillingManagers:    customList(scimRecord, "Billing Managers"),
			GuestCollaborators: customList(scimRecord, "Guest Collaborators"),
		},
	}
	if suffix := customList(scimRecord, "Username Suffix"); len(suffix) > 0 {
		settings.Mapper.UsernameSuffix = suffix[0]
	}
	if len(settings.Scope.Groups) == 0 {
		if len(settings.Scope.OrgUnits) == 0 {
			err = errors.New("\"SCIM Group\" or \"Org Units\" custom field is missing or does not contain any value")
			return
		}
		settings.Options.Mode = ModeOrgUnit
	}

	gcp = &GoogleEndpointParameters{
		AdminAccount: subject,
		Credentials:  credentials,
	}

	ka = &ScimEndpointParameters{
		Url:   scimRecord.GetFieldValueByType("url"),
		Token: scimRecord.Password(),
	}
	ka.Verbose = customBool(scimRecord, "Verbose", false)

	var ok bool
	var sv string
	var fields = scimRecord.GetCustomFieldsByLabel("Destructive")
	if len(fields) > 0 {
		var value = fields[0]["value"]
		var av []any
		if av, ok = value.([]any); ok {
			if len(av) > 0 && av[0] != nil {
				if sv, ok = av[0].(string); ok {
					if iv, er1 := strconv.Atoi(sv); er1 == nil {
						settings.Options.DeleteSuspended = iv > 0
					}
				}
			}
		}
	}
	return
}
