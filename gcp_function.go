package ksm_scim_sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	ksm "github.com/keeper-security/secrets-manager-go/core"
	"go.uber.org/zap"
	"keepersecurity.com/ksm-scim-sync/pkg/logger"
	"keepersecurity.com/ksm-scim-sync/scim"
)

func init() {
	// Register an HTTP function with the Functions Framework
	functions.HTTP("GcpScimSyncHttp", gcpScimSyncHttp)
	functions.CloudEvent("GcpScimSyncPubSub", gcpScimSyncPubSub)
}

const ksmConfigName = "KSM_CONFIG_BASE64"
const ksmRecordUid = "KSM_RECORD_UID"
const logLevelName = "LOG_LEVEL"
const dryRunName = "SCIM_DRY_RUN"

func newLogger() *zap.SugaredLogger {
	var level = os.Getenv(logLevelName)
	if len(level) == 0 {
		level = "info"
	}
	if log, err := logger.New(level, ""); err == nil {
		return log
	}
	return zap.NewExample().Sugar()
}

// findScimRecord returns the first login record that points to a SCIM v2
// endpoint and carries the Google service account key.
func findScimRecord(records []*ksm.Record) *ksm.Record {
	for _, r := range records {
		if r.Type() != "login" {
			continue
		}
		var webUrl = r.GetFieldValueByType("url")
		if len(webUrl) == 0 {
			continue
		}
		var uri *url.URL
		var er1 error
		if uri, er1 = url.Parse(webUrl); er1 != nil {
			continue
		}
		if !strings.Contains(uri.Path, "/scim/v2/") {
			continue
		}
		if len(r.FindFiles("credentials.json")) == 0 {
			continue
		}
		return r
	}
	return nil
}

func runScimSync(ctx context.Context, log *zap.SugaredLogger) (result *scim.SyncResult, err error) {
	var configBase64 = os.Getenv(ksmConfigName)
	if len(configBase64) == 0 {
		err = fmt.Errorf("environment variable \"%s\" is not set", ksmConfigName)
		return
	}

	var config = ksm.NewMemoryKeyValueStorage(configBase64)
	var sm = ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: config,
	})

	var filter []string
	var recordUid = os.Getenv(ksmRecordUid)
	if len(recordUid) > 0 {
		filter = append(filter, recordUid)
	}

	var records []*ksm.Record
	if records, err = sm.GetSecrets(filter); err != nil {
		return
	}

	var scimRecord = findScimRecord(records)
	if scimRecord == nil {
		err = errors.New("SCIM record was not found. Make sure the record is valid and shared to KSM application")
		return
	}

	var ka *scim.ScimEndpointParameters
	var gcp *scim.GoogleEndpointParameters
	var settings *scim.RecordSettings
	if ka, gcp, settings, err = scim.LoadScimParametersFromRecord(scimRecord); err != nil {
		return
	}

	var googleEndpoint *scim.GoogleEndpoint
	if googleEndpoint, err = scim.NewGoogleEndpoint(ctx, gcp, log); err != nil {
		return
	}
	var scimEndpoint = scim.NewScimEndpoint(ka, nil, log)

	var sync = scim.NewSynchronizer(googleEndpoint, scimEndpoint, &settings.Mapper, settings.Options, log)
	result = sync.Synchronize(ctx, settings.Scope, os.Getenv(dryRunName) == "1")
	if !result.Success {
		err = errors.New(result.Error)
	}
	return
}

// gcpScimSyncHttp runs one sync per HTTP request and writes the statistics.
func gcpScimSyncHttp(w http.ResponseWriter, r *http.Request) {
	var log = newLogger()
	defer func() { _ = log.Sync() }()
	var result, err = runScimSync(r.Context(), log)
	if err != nil {
		log.Errorw("SCIM sync failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
	scim.PrintStatistics(w, result)
	if err != nil && result == nil {
		_, _ = fmt.Fprintf(w, "Error: %s\n", err)
	}
}

// gcpScimSyncPubSub runs one sync per Pub/Sub message; the payload is ignored.
func gcpScimSyncPubSub(ctx context.Context, _ event.Event) (err error) {
	var log = newLogger()
	defer func() { _ = log.Sync() }()
	var result *scim.SyncResult
	if result, err = runScimSync(ctx, log); err != nil {
		log.Errorw("SCIM sync failed", "error", err)
	}
	scim.PrintStatistics(os.Stdout, result)
	return
}
