package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskCmd_Use(t *testing.T) {
	assert.Equal(t, "ask [question]", askCmd.Use)
}

func TestAskCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ask"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestAskCmd_ResolvesSessionNamespaces(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "does the robber block production?"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "robber blocks production")
	assert.Contains(t, buf.String(), "Confidence: 85%")
	assert.Contains(t, buf.String(), "Citations:")
	assert.Contains(t, buf.String(), "Catan - The Robber, p.9 [official]")
	assert.Contains(t, buf.String(), "ERRATA overrides BASE")

	svc := adjudicationService.(*mockAdjudication)
	assert.Equal(t, []string{"official_catan", "user_local"}, svc.lastRequest.Namespaces)
}

func TestAskCmd_ExplicitNamespacesSkipResolver(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	namespaceResolver = &mockResolver{err: errors.New("resolver must not be called")}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "--namespace", "official_catan", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
		askNamespaces = nil
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	svc := adjudicationService.(*mockAdjudication)
	assert.Equal(t, []string{"official_catan"}, svc.lastRequest.Namespaces)
}

func TestAskCmd_NoNamespaces(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	namespaceResolver = &mockResolver{}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ask", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no indexed rulebooks")
}

func TestAskCmd_RecordsVerdict(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "--session", "game-night", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
		askSession = "default"
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	sink := auditSink.(*mockAudit)
	assert.Equal(t, []string{"game-night"}, sink.recorded)
}

func TestAskCmd_AuditFailureDoesNotHideVerdict(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	auditSink = &mockAudit{err: errors.New("disk full")}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "robber blocks production")
}

func TestAskCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ask", "--json", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
		askJSON = false
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "\"verdict\"")
	assert.Contains(t, buf.String(), "\"confidence\"")
	assert.Contains(t, buf.String(), "\"citations\"")
}

func TestAskCmd_ServiceNotConfigured(t *testing.T) {
	oldService := adjudicationService
	adjudicationService = nil
	defer func() {
		adjudicationService = oldService
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ask", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "adjudication service not configured")
}

func TestAskCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	adjudicationService = &mockAdjudication{err: errors.New("backend down")}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ask", "robber?"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "adjudication failed")
}
