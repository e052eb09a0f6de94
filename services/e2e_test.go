package services

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rtaiello/let-them-drop/crypto"
	"github.com/rtaiello/let-them-drop/protocol"
	"github.com/stretchr/testify/require"
)

func testParams() *protocol.Params {
	return &protocol.Params{
		VectorLength:           2,
		CommitteeSize:          3,
		Threshold:              2,
		MinOnline:              2,
		RoundDeadline:          time.Minute,
		WindowMinContributions: 2,
		WindowMaxAge:           time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postJSON[T any](t *testing.T, url string, msg *T) *http.Response {
	t.Helper()

	body, err := protocol.SerializeMessage(msg)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON[T any](t *testing.T, url string) (*T, int) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}
	msg, err := protocol.DecodeMessage[T](resp.Body)
	require.NoError(t, err)
	return msg, resp.StatusCode
}

func TestEagleServiceE2E(t *testing.T) {
	params := testParams()
	field, err := params.Field()
	require.NoError(t, err)

	svc, err := NewEagleService(params, discardLogger())
	require.NoError(t, err)

	router := chi.NewRouter()
	svc.RegisterRoutes(router)
	ts := httptest.NewServer(router)
	defer ts.Close()

	now := time.Now()

	// Register three clients.
	sessions := make(map[protocol.ClientID]*protocol.ClientSession)
	keys := make(map[protocol.ClientID]crypto.PrivateKey)
	for _, id := range []protocol.ClientID{1, 2, 3} {
		_, priv, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		session, err := protocol.NewClientSession(id, priv, params)
		require.NoError(t, err)
		sessions[id] = session
		keys[id] = priv

		reg, err := session.RegisterMessage()
		require.NoError(t, err)
		resp := postJSON(t, ts.URL+"/register", reg)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// Registering twice conflicts.
		resp = postJSON(t, ts.URL+"/register", reg)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	}

	// No round info before key agreement closes.
	_, status := getJSON[protocol.RoundInfo](t, ts.URL + "/round")
	require.Equal(t, http.StatusNotFound, status)

	// Open round 1 and run key agreement.
	svc.Step(now)
	for _, id := range []protocol.ClientID{1, 2, 3} {
		ke, err := sessions[id].BeginRound(1)
		require.NoError(t, err)
		resp := postJSON(t, ts.URL+"/key-exchange", ke)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	svc.Step(now)

	info, status := getJSON[protocol.RoundInfo](t, ts.URL + "/round")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []protocol.ClientID{1, 2, 3}, info.KeyedSet)

	// Deal shares.
	for _, id := range []protocol.ClientID{1, 2, 3} {
		require.NoError(t, sessions[id].ProcessRoundInfo(info))
		shares, err := sessions[id].DealShares()
		require.NoError(t, err)
		for _, sub := range shares {
			resp := postJSON(t, ts.URL+"/shares", sub)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
	}
	svc.Step(now)

	// Submit masked inputs.
	inputs := map[protocol.ClientID][]int64{
		1: {1, 10},
		2: {2, 20},
		3: {3, 30},
	}
	for _, id := range []protocol.ClientID{1, 2, 3} {
		msg, err := sessions[id].MaskInput(crypto.NewVectorFromInt64(field, inputs[id]))
		require.NoError(t, err)
		resp := postJSON(t, ts.URL+"/input", msg)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// A duplicate submission conflicts.
		resp = postJSON(t, ts.URL+"/input", msg)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	}

	// A forged submission is rejected before any other check.
	forged, err := protocol.NewSigned(keys[2], &protocol.MaskedInput{
		ClientID: 1,
		Round:    1,
		Vector:   crypto.NewVectorFromInt64(field, []int64{0, 0}),
	})
	require.NoError(t, err)
	resp := postJSON(t, ts.URL+"/input", forged)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Finalize and fetch the result.
	svc.Step(now)
	result, status := getJSON[protocol.AggregationResult](t, ts.URL + "/result/1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []protocol.ClientID{1, 2, 3}, result.OnlineSet)
	require.True(t, result.Sum.Equal(crypto.NewVectorFromInt64(field, []int64{6, 60})), "got %v", result.Sum)

	// The round is closed now: a straggler gets 410.
	late, err := protocol.NewSigned(keys[1], &protocol.MaskedInput{
		ClientID: 1,
		Round:    1,
		Vector:   crypto.NewVectorFromInt64(field, []int64{9, 9}),
	})
	require.NoError(t, err)
	resp = postJSON(t, ts.URL+"/input", late)
	require.Equal(t, http.StatusGone, resp.StatusCode)

	_, status = getJSON[protocol.AggregationResult](t, ts.URL + "/result/2")
	require.Equal(t, http.StatusNotFound, status)
}

func TestOwlServiceE2E(t *testing.T) {
	params := testParams()
	field, err := params.Field()
	require.NoError(t, err)

	svc, err := NewOwlService(params, discardLogger())
	require.NoError(t, err)

	router := chi.NewRouter()
	svc.RegisterRoutes(router)
	ts := httptest.NewServer(router)
	defer ts.Close()

	now := time.Now()

	sessions := make(map[protocol.ClientID]*protocol.OwlClientSession)
	for _, id := range []protocol.ClientID{1, 2, 3} {
		_, priv, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		session, err := protocol.NewOwlClientSession(id, priv, params)
		require.NoError(t, err)
		sessions[id] = session

		reg, err := session.RegisterMessage()
		require.NoError(t, err)
		resp := postJSON(t, ts.URL+"/register", reg)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	_, status := getJSON[protocol.WindowInfo](t, ts.URL + "/window")
	require.Equal(t, http.StatusNotFound, status)

	svc.OpenWindow(now)
	info, status := getJSON[protocol.WindowInfo](t, ts.URL + "/window")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, uint64(1), info.Window)

	// Client 3 masks for window 1 but its message will arrive too late.
	lateMsg, err := sessions[3].Contribute(crypto.NewVectorFromInt64(field, []int64{100, 100}), info)
	require.NoError(t, err)

	for _, id := range []protocol.ClientID{1, 2} {
		msg, err := sessions[id].Contribute(crypto.NewVectorFromInt64(field, []int64{int64(id), int64(id)}), info)
		require.NoError(t, err)
		resp := postJSON(t, ts.URL+"/contribution", msg)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	svc.Step(now)
	result, status := getJSON[protocol.AggregationResult](t, ts.URL + "/result/1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []protocol.ClientID{1, 2}, result.OnlineSet)
	require.True(t, result.Sum.Equal(crypto.NewVectorFromInt64(field, []int64{3, 3})), "got %v", result.Sum)

	// The late window-1 contribution is gone; client 3 remasks for window 2.
	resp := postJSON(t, ts.URL+"/contribution", lateMsg)
	require.Equal(t, http.StatusGone, resp.StatusCode)

	next, status := getJSON[protocol.WindowInfo](t, ts.URL + "/window")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, uint64(2), next.Window)

	for _, id := range []protocol.ClientID{3, 1} {
		msg, err := sessions[id].Contribute(crypto.NewVectorFromInt64(field, []int64{int64(id) * 10, 0}), next)
		require.NoError(t, err)
		resp := postJSON(t, ts.URL+"/contribution", msg)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	svc.Step(now)

	result, status = getJSON[protocol.AggregationResult](t, ts.URL + "/result/2")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []protocol.ClientID{1, 3}, result.OnlineSet)
	require.True(t, result.Sum.Equal(crypto.NewVectorFromInt64(field, []int64{40, 0})), "got %v", result.Sum)
}
