package discharge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/macaroonkit/macaroon"
)

func fixedKeyLookup(vk macaroon.SigningKey) KeyLookup {
	return func(ctx context.Context, caveatID []byte) (macaroon.SigningKey, error) {
		return vk, nil
	}
}

func TestHandleDischargeImmediate(t *testing.T) {
	vk := macaroon.SigningKey("vk")
	srv := &Server{Keys: fixedKeyLookup(vk)}

	mux := http.NewServeMux()
	mux.HandleFunc("/discharge", srv.HandleDischarge)
	hs := httptest.NewServer(mux)
	defer hs.Close()

	primary := macaroon.New(macaroon.SigningKey("rk"), []byte("p"), "").
		AddThirdParty([]byte("auth"), []byte("vk"), hs.URL+"/discharge")

	client := NewClient()
	discharge, err := client.FetchDischarge(context.Background(), hs.URL+"/discharge", []byte("auth"))
	assert.NoError(t, err)

	bound := primary.BindDischarge(discharge)
	assert.NoError(t, primary.Verify(macaroon.SigningKey("rk"), macaroon.AcceptAll(), []*macaroon.Token{bound}))
}

func TestHandleDischargeEmptyRequestBody(t *testing.T) {
	srv := &Server{Keys: fixedKeyLookup(macaroon.SigningKey("vk"))}

	mux := http.NewServeMux()
	mux.HandleFunc("/discharge", srv.HandleDischarge)
	hs := httptest.NewServer(mux)
	defer hs.Close()

	resp, err := http.Post(hs.URL+"/discharge", "application/json", nil)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlePollCreatesPollEntry(t *testing.T) {
	store, err := NewMemoryStore(8)
	assert.NoError(t, err)

	srv := &Server{Store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/poll", srv.HandlePoll)
	mux.HandleFunc("/poll/", srv.HandlePollStatus)
	hs := httptest.NewServer(mux)
	defer hs.Close()
	srv.Location = hs.URL

	resp, err := http.Post(hs.URL+"/poll", "application/json", nil)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
