package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-audit-toolkit/internal/amocrm"
)

const membersCSV = "username,first_name,last_name,phone,source_group\n" +
	"ann_k,Ann,K,+7 900 000 00 00,founders\n" +
	"@solo,,,,\n"

func writeMembers(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "members.csv")
	require.NoError(t, os.WriteFile(path, []byte(membersCSV), 0644))
	return path
}

func TestRunExport(t *testing.T) {
	out := filepath.Join(t.TempDir(), "import.csv")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--members", writeMembers(t), "--export", out}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Import CSV with 2 members saved to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\ufeff"))
	assert.Contains(t, string(data), "@ann_k")
}

func TestRunPush(t *testing.T) {
	var leads []amocrm.Lead
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v4/contacts":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v4/contacts":
			var batch []amocrm.Contact
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			for i := range batch {
				batch[i].ID = i + 1
			}
			json.NewEncoder(w).Encode(map[string]any{"_embedded": map[string]any{"contacts": batch}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v4/leads":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&leads))
			json.NewEncoder(w).Encode(map[string]any{"_embedded": map[string]any{"leads": leads}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Setenv("CRM_AUDIT_AMOCRM_ACCESS_TOKEN", "token-123")
	t.Setenv("CRM_AUDIT_AMOCRM_REQUESTS_PER_SECOND", "7")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--members", writeMembers(t),
		"--base-url", server.URL + "/api/v4",
		"--pipeline-id", "42",
		"--tags", "spring, promo",
	}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Processed: 2 | Contacts created: 2 | Leads created: 2 | Skipped: 0")
	require.Len(t, leads, 2)
	assert.Equal(t, 42, leads[0].PipelineID)
	assert.Equal(t, []amocrm.Tag{{Name: "spring"}, {Name: "promo"}, {Name: "telegram"}}, leads[0].Embedded.Tags)
}

func TestRunRequiresCredentials(t *testing.T) {
	t.Setenv("CRM_AUDIT_AMOCRM_ACCESS_TOKEN", "")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--members", writeMembers(t)}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token missing")
}
