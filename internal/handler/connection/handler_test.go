package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/improv-battle/backend/internal/model/connection"
	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
)

type issuerFunc func(ctx context.Context, name string) (model.Details, error)

func (f issuerFunc) Issue(ctx context.Context, name string) (model.Details, error) {
	return f(ctx, name)
}

func setupRouter(issuer Issuer) *chi.Mux {
	r := chi.NewRouter()
	New(issuer).RegisterRoutes(r)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestConnectionDetailsReturnsToken(t *testing.T) {
	issuer := credential.NewIssuer(credential.Config{APIKey: "devkey", APISecret: "secret"})
	resp := get(setupRouter(issuer), "/connection-details?name=Ada%20Lovelace")

	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Ada Lovelace", body["participantName"])
	assert.Equal(t, credential.DefaultServerURL, body["serverUrl"])
	assert.Regexp(t, `^improv_battle_`, body["roomName"])
	assert.NotEmpty(t, body["participantToken"])
}

func TestConnectionDetailsPlaceholderName(t *testing.T) {
	issuer := credential.NewIssuer(credential.Config{APIKey: "devkey", APISecret: "secret"})
	resp := get(setupRouter(issuer), "/connection-details")

	require.Equal(t, http.StatusOK, resp.Code)

	var body model.Details
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Regexp(t, `^player_.+`, body.ParticipantName)
}

func TestConnectionDetailsWithoutCredentials(t *testing.T) {
	resp := get(setupRouter(credential.NewIssuer(credential.Config{})), "/connection-details?name=Ada")

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"LiveKit API credentials not configured"}`, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "participantToken")
}

func TestConnectionDetailsUnexpectedFailure(t *testing.T) {
	issuer := issuerFunc(func(context.Context, string) (model.Details, error) {
		return model.Details{}, errors.New("entropy exhausted")
	})
	resp := get(setupRouter(issuer), "/connection-details?name=Ada")

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"Failed to generate connection details"}`, resp.Body.String())
}

func TestConnectionDetailsPassesRawName(t *testing.T) {
	var got string
	issuer := issuerFunc(func(_ context.Context, name string) (model.Details, error) {
		got = name
		return model.Details{ServerURL: "ws://x", RoomName: "r", ParticipantToken: "t", ParticipantName: name}, nil
	})
	resp := get(setupRouter(issuer), "/connection-details?name=Zo%C3%AB")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Zoë", got)
}
